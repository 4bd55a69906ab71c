package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const ChatBodyKey = "sanitized_body"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageLength    int
	MaxHistory          int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the validated body of a chat request, stored in the
// request locals under ChatBodyKey.
type ChatRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history"`
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = 20
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(c.Path(), "/chat") {
			var req ChatRequest
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if msg := ValidateChat(&req, cfg); msg != "" {
				if msg == invalidContent {
					cfg.Logger.Warn("Potential XSS attempt",
						zap.String("ip", c.IP()),
						zap.String("message", req.Message),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}

			c.Locals(ChatBodyKey, req)
		}

		return c.Next()
	}
}

const invalidContent = "Invalid message content"

// ValidateChat sanitizes req in place and returns a user-facing reason when
// it must be rejected. The websocket handler calls it directly since its
// frames never pass through HTTP middleware.
func ValidateChat(req *ChatRequest, cfg Config) string {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = 20
	}

	req.Message = sanitizeString(req.Message)
	if req.Message == "" {
		return "Message is required and must be a string"
	}
	if len(req.Message) > cfg.MaxMessageLength {
		return "Message exceeds maximum length"
	}
	if containsXSS(req.Message) {
		return invalidContent
	}

	if len(req.History) > cfg.MaxHistory {
		return "History is too long"
	}
	for i := range req.History {
		h := &req.History[i]
		if h.Role != "user" && h.Role != "assistant" {
			return "History role must be user or assistant"
		}
		h.Content = sanitizeString(h.Content)
		if len(h.Content) > cfg.MaxMessageLength || containsXSS(h.Content) {
			return invalidContent
		}
	}
	return ""
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
