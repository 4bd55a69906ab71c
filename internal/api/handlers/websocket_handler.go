package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/assistant"
	"github.com/traffiq/backend/internal/middleware/validation"
	"github.com/traffiq/backend/pkg/logger"
)

type WebSocketHandler struct {
	assistant  Asker
	validation validation.Config
}

func NewWebSocketHandler(a Asker, cfg validation.Config) *WebSocketHandler {
	return &WebSocketHandler{
		assistant:  a,
		validation: cfg,
	}
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string                   `json:"type"`
			Content string                   `json:"content"`
			History []validation.ChatMessage `json:"history"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "chat" {
			continue
		}

		req := validation.ChatRequest{Message: msg.Content, History: msg.History}
		if reason := validation.ValidateChat(&req, h.validation); reason != "" {
			h.sendError(c, reason)
			continue
		}

		err = h.streamResponse(c, req)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req validation.ChatRequest) error {
	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return err
	}

	reply, err := h.assistant.AskStream(context.Background(), toQuestion(req), func(delta string) error {
		return h.sendChunk(c, "chunk", delta)
	})
	if err != nil {
		return err
	}

	return h.sendComplete(c, reply)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, reply *assistant.Reply) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"message_id": reply.ID,
		"context":    reply.Context,
		"cached":     reply.Cached,
		"fallback":   reply.Fallback,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
