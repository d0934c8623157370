package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aegislabs/aegis/internal/services"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	convos services.ConversationService
	chat   services.ChatService

	upgrader websocket.Upgrader
}

func NewWSHandler(convos services.ConversationService, chat services.ChatService) *WSHandler {
	return &WSHandler{
		convos: convos,
		chat:   chat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type    string `json:"type"` // "message"
	Message string `json:"message"`
}

type wsChunkMsg struct {
	Type string `json:"type"` // "chunk"
	Text string `json:"text"`
}

type wsDoneMsg struct {
	Type           string `json:"type"` // "done"
	ConversationID string `json:"conversation_id"`
	QuestionsAsked int    `json:"questions_asked"`
	Phase          string `json:"phase"`
}

type wsErrorMsg struct {
	Type    string     `json:"type"` // "error"
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// ChatWS streams assistant turns over a WebSocket: the client sends
// {"type":"message","message":...}, the server emits "chunk" frames and
// closes the turn with a "done" frame carrying the updated counter.
func (h *WSHandler) ChatWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.ChatWS", "missing conversation_id", nil))
		return
	}

	conv, err := h.convos.Get(c.Request.Context(), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	if conv == nil || conv.UserID != userID {
		writeError(c, utils.E(utils.CodeNotFound, "WSHandler.ChatWS", "conversation not found", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx := c.Request.Context()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeJSON(wsErrorMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "invalid json"})
			continue
		}
		if msg.Type != "message" || msg.Message == "" {
			_ = wc.writeJSON(wsErrorMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "expected {\"type\":\"message\",\"message\":...}"})
			continue
		}

		result, terr := h.chat.StreamTurn(ctx, conversationID, msg.Message, func(chunk string) error {
			return wc.writeJSON(wsChunkMsg{Type: "chunk", Text: chunk})
		})
		if terr != nil {
			code := utils.CodeInternal
			var ae *utils.AppError
			if errors.As(terr, &ae) {
				code = ae.Code
			}
			_ = wc.writeJSON(wsErrorMsg{Type: "error", Code: code, Message: "turn failed"})
			continue
		}

		if err := wc.writeJSON(wsDoneMsg{
			Type:           "done",
			ConversationID: result.ConversationID,
			QuestionsAsked: result.QuestionsAsked,
			Phase:          result.Phase,
		}); err != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	}
}
