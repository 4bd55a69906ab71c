package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/internal/violations"
	"github.com/traffiq/backend/pkg/logger"
)

type Reloader interface {
	Reload(ctx context.Context) (*violations.Snapshot, error)
}

type ViolationsHandler struct {
	analyzer *violations.Analyzer
	reloader Reloader
}

func NewViolationsHandler(analyzer *violations.Analyzer, reloader Reloader) *ViolationsHandler {
	return &ViolationsHandler{
		analyzer: analyzer,
		reloader: reloader,
	}
}

func (h *ViolationsHandler) Register(router fiber.Router) {
	router.Get("/categories", h.GetCategories)
	router.Get("/periods", h.GetPeriods)
	router.Get("/fingerprints", h.GetFingerprints)
	router.Get("/periods/:ref/pattern", h.GetPattern)
	router.Get("/periods/:ref/similar", h.GetSimilar)
	router.Get("/similarity", h.GetSimilarity)
	router.Get("/trend", h.GetTrend)
	router.Get("/outliers", h.GetOutliers)
	router.Post("/reload", h.Reload)
}

// fail maps analysis errors to responses: caller mistakes are 400, a
// missing dataset is 503, anything else is 500.
func (h *ViolationsHandler) fail(c *fiber.Ctx, op string, err error) error {
	metrics.AnalysisTotal.WithLabelValues(op, "error").Inc()

	switch {
	case violations.IsInvalidInput(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, violations.ErrNotLoaded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Violation dataset is not loaded yet",
		})
	default:
		logger.Error("Violation analysis failed", zap.String("operation", op), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze violations",
		})
	}
}

func (h *ViolationsHandler) ok(c *fiber.Ctx, op string, start time.Time, body any) error {
	metrics.AnalysisDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.AnalysisTotal.WithLabelValues(op, "success").Inc()
	return c.JSON(body)
}

func (h *ViolationsHandler) GetCategories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"categories": h.analyzer.Taxonomy(),
	})
}

func (h *ViolationsHandler) GetPeriods(c *fiber.Ctx) error {
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "periods", err)
	}

	return c.JSON(fiber.Map{
		"version":   snap.Version(),
		"loaded_at": snap.LoadedAt(),
		"periods":   snap.Periods(),
	})
}

func (h *ViolationsHandler) GetFingerprints(c *fiber.Ctx) error {
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "fingerprints", err)
	}

	periods := snap.Periods()
	out := make([]fiber.Map, len(periods))
	for i, fp := range snap.Fingerprints() {
		out[i] = fiber.Map{
			"index":  i,
			"period": fp.Period,
			"label":  periods[i].Label,
			"vector": fp.Vector,
		}
	}

	return c.JSON(fiber.Map{
		"categories":   snap.Taxonomy().Keys(),
		"fingerprints": out,
	})
}

func (h *ViolationsHandler) GetPattern(c *fiber.Ctx) error {
	start := time.Now()
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "pattern", err)
	}

	ref := c.Params("ref")
	if ref == "overall" {
		return h.ok(c, "pattern", start, fiber.Map{
			"period": "overall",
			"bars":   snap.OverallPattern(),
		})
	}

	index, err := snap.Resolve(ref)
	if err != nil {
		return h.fail(c, "pattern", err)
	}

	bars, err := snap.Pattern(index)
	if err != nil {
		return h.fail(c, "pattern", err)
	}

	return h.ok(c, "pattern", start, fiber.Map{
		"period": snap.Periods()[index],
		"bars":   bars,
	})
}

func (h *ViolationsHandler) GetSimilar(c *fiber.Ctx) error {
	start := time.Now()
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "similar", err)
	}

	index, err := snap.Resolve(c.Params("ref"))
	if err != nil {
		return h.fail(c, "similar", err)
	}

	k, err := queryInt(c, "k", violations.DefaultTopK)
	if err != nil {
		return h.fail(c, "similar", err)
	}

	matches, err := snap.Similar(index, k)
	if err != nil {
		return h.fail(c, "similar", err)
	}

	return h.ok(c, "similar", start, fiber.Map{
		"period":  snap.Periods()[index],
		"similar": matches,
	})
}

func (h *ViolationsHandler) GetSimilarity(c *fiber.Ctx) error {
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "similarity", err)
	}

	periods := snap.Periods()
	labels := make([]string, len(periods))
	for i, p := range periods {
		labels[i] = p.Label
	}

	return c.JSON(fiber.Map{
		"labels": labels,
		"matrix": snap.Matrix(),
	})
}

func (h *ViolationsHandler) GetTrend(c *fiber.Ctx) error {
	start := time.Now()
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "trend", err)
	}

	category := c.Query("category")
	if category == "" {
		category = snap.Taxonomy()[0].Key
	}

	trend, err := snap.Trend(category)
	if err != nil {
		return h.fail(c, "trend", err)
	}

	return h.ok(c, "trend", start, trend)
}

func (h *ViolationsHandler) GetOutliers(c *fiber.Ctx) error {
	start := time.Now()
	snap, err := h.analyzer.Current()
	if err != nil {
		return h.fail(c, "outliers", err)
	}

	n, err := queryInt(c, "n", 3)
	if err != nil {
		return h.fail(c, "outliers", err)
	}

	outliers, err := snap.Outliers(n)
	if err != nil {
		return h.fail(c, "outliers", err)
	}

	return h.ok(c, "outliers", start, fiber.Map{
		"outliers": outliers,
	})
}

func (h *ViolationsHandler) Reload(c *fiber.Ctx) error {
	snap, err := h.reloader.Reload(c.UserContext())
	if err != nil {
		if violations.IsInvalidInput(err) {
			return h.fail(c, "reload", err)
		}
		metrics.AnalysisTotal.WithLabelValues("reload", "error").Inc()
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to reload violation dataset",
		})
	}

	logger.Info("Violation dataset reloaded", zap.String("version", snap.Version()), zap.Int("periods", snap.Len()))

	return c.JSON(fiber.Map{
		"version": snap.Version(),
		"periods": snap.Len(),
	})
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", violations.ErrInvalidInput, key)
	}
	return n, nil
}
