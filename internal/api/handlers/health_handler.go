package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/violations"
	"github.com/traffiq/backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	analyzer *violations.Analyzer
	cache    Pinger
}

// NewHealthHandler builds the liveness and readiness probes. cache may be nil
// when the reply cache is disabled.
func NewHealthHandler(analyzer *violations.Analyzer, cache Pinger) *HealthHandler {
	return &HealthHandler{
		analyzer: analyzer,
		cache:    cache,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := fiber.Map{"dataset": "ok"}
	ready := true

	if !h.analyzer.Ready() {
		checks["dataset"] = "not loaded"
		ready = false
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			logger.Warn("Cache readiness check failed", zap.Error(err))
			checks["cache"] = "unreachable"
			ready = false
		} else {
			checks["cache"] = "ok"
		}
	}

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "not ready"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": checks,
	})
}
