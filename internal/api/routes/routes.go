package routes

import (
	"github.com/aegislabs/aegis/internal/api/handlers"
	"github.com/aegislabs/aegis/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Conversation *handlers.ConversationHandler
	Chat         *handlers.ChatHandler
	WS           *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/api/conversations", d.Conversation.Start)
	auth.GET("/api/conversations", d.Conversation.List)
	auth.GET("/api/conversations/:id", d.Conversation.Get)
	auth.GET("/api/conversations/:id/turns", d.Conversation.Turns)
	auth.DELETE("/api/conversations/:id", d.Conversation.Delete)

	auth.POST("/api/chat", d.Chat.Chat)

	// WebSocket
	auth.GET("/ws/chat/:conversation_id", d.WS.ChatWS)
}
