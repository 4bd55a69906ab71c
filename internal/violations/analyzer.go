// Package violations serves the violation-pattern dashboard: it fingerprints
// a loaded table of monthly counts, keeps the pairwise similarity matrix, and
// derives the chart series the front end draws from them.
package violations

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/dataset"
	"github.com/traffiq/backend/internal/fingerprint"
	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/internal/similarity"
	"github.com/traffiq/backend/pkg/logger"
	"github.com/traffiq/backend/pkg/utils"
)

// ErrInvalidInput is the similarity engine's invalid-input kind; analyzer
// range and lookup errors wrap it as well.
var ErrInvalidInput = similarity.ErrInvalidInput

var ErrNotLoaded = errors.New("violations: no dataset loaded")

// IsInvalidInput reports whether err is a caller error that should be shown
// to the user rather than treated as a server fault.
func IsInvalidInput(err error) bool {
	return errors.Is(err, similarity.ErrInvalidInput) || errors.Is(err, fingerprint.ErrInvalidInput)
}

const LabelLayout = "January 2006"

type Period struct {
	Index  int       `json:"index"`
	Period time.Time `json:"period"`
	Label  string    `json:"label"`
	Total  int64     `json:"total"`
}

type Analyzer struct {
	taxonomy Taxonomy
	builder  *fingerprint.Builder
	current  atomic.Pointer[Snapshot]
}

func NewAnalyzer(taxonomy Taxonomy, opts ...fingerprint.Option) (*Analyzer, error) {
	opts = append([]fingerprint.Option{fingerprint.WithIssueFunc(reportIssue)}, opts...)

	builder, err := fingerprint.NewBuilder(taxonomy.Keys(), opts...)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		taxonomy: append(Taxonomy(nil), taxonomy...),
		builder:  builder,
	}, nil
}

func reportIssue(issue fingerprint.Issue) {
	metrics.DataQualityIssues.WithLabelValues(string(issue.Kind)).Inc()
	logger.Debug("Fingerprint input padded", zap.String("issue", issue.String()))
}

func (a *Analyzer) Taxonomy() Taxonomy {
	return append(Taxonomy(nil), a.taxonomy...)
}

// Load fingerprints records and publishes them as the current snapshot.
// Readers holding an older snapshot keep a consistent view.
func (a *Analyzer) Load(records []fingerprint.Record) (*Snapshot, error) {
	start := time.Now()

	sorted := append([]fingerprint.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})

	fps := a.builder.Build(sorted)
	matrix, err := similarity.ComputeMatrix(fingerprint.Vectors(fps))
	if err != nil {
		return nil, fmt.Errorf("failed to compute similarity matrix: %w", err)
	}

	snap := &Snapshot{
		taxonomy:     a.taxonomy,
		records:      sorted,
		fingerprints: fps,
		matrix:       matrix,
		periods:      make([]Period, len(sorted)),
		loadedAt:     time.Now(),
	}

	overall := fingerprint.Record{Counts: make(map[string]int64, len(a.taxonomy))}
	for _, key := range a.taxonomy.Keys() {
		overall.Counts[key] = 0
	}
	for i, r := range sorted {
		var sum int64
		for _, key := range a.taxonomy.Keys() {
			if c := r.Counts[key]; c > 0 {
				sum += c
				overall.Counts[key] += c
			}
		}
		if r.Total != nil && *r.Total > 0 {
			sum = *r.Total
		}
		snap.periods[i] = Period{
			Index:  i,
			Period: r.Period,
			Label:  r.Period.Format(LabelLayout),
			Total:  sum,
		}
	}
	snap.overall = a.builder.Build([]fingerprint.Record{overall})[0]
	snap.version = versionOf(a.taxonomy, sorted)

	a.current.Store(snap)

	metrics.DatasetPeriods.Set(float64(len(sorted)))
	metrics.AnalysisDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	logger.Info("Violation fingerprints computed",
		zap.Int("periods", len(sorted)),
		zap.Int("categories", len(a.taxonomy)),
		zap.String("version", snap.version[:12]),
	)

	return snap, nil
}

// LoadTable is Load for a table produced by a dataset source.
func (a *Analyzer) LoadTable(t *dataset.Table) (*Snapshot, error) {
	return a.Load(t.Records)
}

func (a *Analyzer) Current() (*Snapshot, error) {
	snap := a.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

func (a *Analyzer) Ready() bool {
	return a.current.Load() != nil
}

func versionOf(taxonomy Taxonomy, records []fingerprint.Record) string {
	parts := make([]string, 0, len(records)*(len(taxonomy)+2)+len(taxonomy))
	parts = append(parts, taxonomy.Keys()...)
	for _, r := range records {
		parts = append(parts, r.Period.UTC().Format(time.RFC3339))
		for _, key := range taxonomy.Keys() {
			parts = append(parts, strconv.FormatInt(r.Counts[key], 10))
		}
		if r.Total != nil {
			parts = append(parts, strconv.FormatInt(*r.Total, 10))
		} else {
			parts = append(parts, "-")
		}
	}
	return utils.HashParts(parts...)
}
