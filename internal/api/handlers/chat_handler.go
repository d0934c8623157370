package handlers

import (
	"net/http"

	"github.com/aegislabs/aegis/internal/services"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	convos services.ConversationService
	chat   services.ChatService
}

func NewChatHandler(convos services.ConversationService, chat services.ChatService) *ChatHandler {
	return &ChatHandler{convos: convos, chat: chat}
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	QuestionsAsked int    `json:"questions_asked"`
	Phase          string `json:"phase"`
}

// Chat runs one turn. An empty conversation_id starts a fresh
// conversation first; history lives server-side.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Chat", "invalid request body", err))
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := h.chat.Start(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		conversationID = conv.ID
	} else {
		conv, err := h.convos.Get(c.Request.Context(), conversationID)
		if err != nil {
			writeError(c, err)
			return
		}
		if conv == nil || conv.UserID != userID {
			writeError(c, utils.E(utils.CodeNotFound, "ChatHandler.Chat", "conversation not found", nil))
			return
		}
	}

	result, err := h.chat.Turn(c.Request.Context(), conversationID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		ConversationID: result.ConversationID,
		Response:       result.Response,
		QuestionsAsked: result.QuestionsAsked,
		Phase:          result.Phase,
	})
}
