package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traffiq_analysis_duration_seconds",
			Help:    "Time spent computing fingerprints, similarity and chart series",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_analysis_total",
			Help: "Total number of analysis requests",
		},
		[]string{"operation", "status"},
	)

	DataQualityIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_data_quality_issues_total",
			Help: "Values substituted with 0 while loading or fingerprinting periods",
		},
		[]string{"kind"},
	)

	DatasetPeriods = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traffiq_dataset_periods",
			Help: "Number of periods in the loaded dataset",
		},
	)

	DatasetReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_dataset_reloads_total",
			Help: "Dataset reload attempts",
		},
		[]string{"status"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_chat_total",
			Help: "Assistant replies by outcome",
		},
		[]string{"outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffiq_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traffiq_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AnalysisDuration,
			AnalysisTotal,
			DataQualityIssues,
			DatasetPeriods,
			DatasetReloads,
			ChatTotal,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			RateLimited,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
