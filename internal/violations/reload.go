package violations

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/dataset"
	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/pkg/logger"
)

// ReloadHook runs after a new snapshot has been published.
type ReloadHook func(ctx context.Context, snap *Snapshot)

// Reloader reads the configured source into the analyzer. Concurrent
// reloads are serialized; a failed reload keeps the previous snapshot.
type Reloader struct {
	source   dataset.Source
	analyzer *Analyzer
	hooks    []ReloadHook
	mu       sync.Mutex
}

func NewReloader(source dataset.Source, analyzer *Analyzer, hooks ...ReloadHook) *Reloader {
	return &Reloader{
		source:   source,
		analyzer: analyzer,
		hooks:    hooks,
	}
}

func (r *Reloader) Reload(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.reload(ctx)
	if err != nil {
		metrics.DatasetReloads.WithLabelValues("error").Inc()
		logger.Error("Dataset reload failed", zap.String("source", r.source.Name()), zap.Error(err))
		return nil, err
	}
	metrics.DatasetReloads.WithLabelValues("success").Inc()

	for _, hook := range r.hooks {
		hook(ctx, snap)
	}
	return snap, nil
}

func (r *Reloader) reload(ctx context.Context) (*Snapshot, error) {
	table, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.source.Name(), err)
	}
	return r.analyzer.LoadTable(table)
}
