package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/pkg/config"
	"github.com/traffiq/backend/pkg/logger"
)

// Source produces a fresh table on every Load.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Table, error)
}

func NewSource(cfg config.DataConfig, categories []string) (Source, error) {
	schema := Schema{
		PeriodField: cfg.PeriodField,
		TotalField:  cfg.TotalField,
		Categories:  categories,
	}
	if err := schema.validate(); err != nil {
		return nil, err
	}

	switch cfg.Source {
	case "json":
		return &JSONFile{Path: cfg.Path, Schema: schema}, nil
	case "csv":
		return &CSVFile{Path: cfg.Path, Schema: schema}, nil
	case "sqlite":
		return &SQLiteTable{Path: cfg.Path, Table: cfg.Table, Schema: schema}, nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", cfg.Source)
	}
}

func finish(name string, t *Table) *Table {
	t.Source = name

	for _, issue := range t.Issues {
		metrics.DataQualityIssues.WithLabelValues(issue.Kind).Inc()
		logger.Debug("Data quality issue",
			zap.String("source", name),
			zap.Int("row", issue.Row),
			zap.String("field", issue.Field),
			zap.String("kind", issue.Kind),
			zap.String("value", issue.Value),
		)
	}

	logger.Info("Dataset loaded",
		zap.String("source", name),
		zap.Int("periods", len(t.Records)),
		zap.Int("issues", len(t.Issues)),
		zap.Int("skipped", t.Skipped),
	)

	return t
}
