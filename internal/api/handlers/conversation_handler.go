package handlers

import (
	"net/http"

	"github.com/aegislabs/aegis/internal/services"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	convos services.ConversationService
	chat   services.ChatService
}

func NewConversationHandler(convos services.ConversationService, chat services.ChatService) *ConversationHandler {
	return &ConversationHandler{convos: convos, chat: chat}
}

// Start creates a conversation and records the auditor's greeting with
// the first intake question.
func (h *ConversationHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conv, err := h.chat.Start(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.convos.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": rows})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	conv, err := h.convos.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if conv == nil || conv.UserID != userID {
		writeError(c, utils.E(utils.CodeNotFound, "ConversationHandler.Get", "conversation not found", nil))
		return
	}

	c.JSON(http.StatusOK, conv)
}

// Turns lists the audit trail recorded for a conversation's turns.
func (h *ConversationHandler) Turns(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	conv, err := h.convos.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if conv == nil || conv.UserID != userID {
		writeError(c, utils.E(utils.CodeNotFound, "ConversationHandler.Turns", "conversation not found", nil))
		return
	}

	rows, err := h.chat.TurnLogs(c.Request.Context(), id, 0)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"turns": rows})
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	conv, err := h.convos.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if conv == nil || conv.UserID != userID {
		writeError(c, utils.E(utils.CodeNotFound, "ConversationHandler.Delete", "conversation not found", nil))
		return
	}

	if err := h.convos.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
