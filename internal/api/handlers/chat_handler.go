package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/assistant"
	"github.com/traffiq/backend/internal/llm"
	"github.com/traffiq/backend/internal/middleware/validation"
	"github.com/traffiq/backend/pkg/logger"
)

type Asker interface {
	Ask(ctx context.Context, q assistant.Question) (*assistant.Reply, error)
	AskStream(ctx context.Context, q assistant.Question, onDelta func(string) error) (*assistant.Reply, error)
}

type ChatHandler struct {
	assistant Asker
}

func NewChatHandler(a Asker) *ChatHandler {
	return &ChatHandler{
		assistant: a,
	}
}

func toQuestion(req validation.ChatRequest) assistant.Question {
	q := assistant.Question{Message: req.Message}
	for _, h := range req.History {
		q.History = append(q.History, llm.Message{Role: h.Role, Content: h.Content})
	}
	return q
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.ChatBodyKey).(validation.ChatRequest)
	if !ok {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if msg := validation.ValidateChat(&req, validation.Config{}); msg != "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": msg,
			})
		}
	}

	reply, err := h.assistant.Ask(c.UserContext(), toQuestion(req))
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuestion) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message is required",
			})
		}
		logger.Error("Failed to answer chat message", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(reply)
}
