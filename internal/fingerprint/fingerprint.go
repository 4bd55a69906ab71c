// Package fingerprint turns per-period violation counts into composition
// vectors ("fingerprints") that are independent of the period's volume.
//
// A fingerprint holds one proportion per category in the builder's canonical
// category order. Periods with a zero total produce an all-zero vector; the
// builder never emits NaN or infinite entries.
package fingerprint

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput marks caller errors such as an empty category list.
// Problems in the records themselves are never reported through it.
var ErrInvalidInput = errors.New("fingerprint: invalid input")

// Record is one reporting period of raw violation counts.
type Record struct {
	Period time.Time
	Counts map[string]int64
	// Total is the grand total published with the period, if any. It is only
	// used as the denominator when the builder runs WithSuppliedTotal.
	Total *int64
}

// Fingerprint is the normalized composition of one period.
type Fingerprint struct {
	Period time.Time
	Vector []float64
}

// Sum returns the sum of the vector entries.
func (f Fingerprint) Sum() float64 {
	var s float64
	for _, v := range f.Vector {
		s += v
	}
	return s
}

// IsZero reports whether the fingerprint came from a period without violations.
func (f Fingerprint) IsZero() bool {
	for _, v := range f.Vector {
		if v != 0 {
			return false
		}
	}
	return true
}

type IssueKind string

const (
	IssueMissingCategory IssueKind = "missing_category"
	IssueNegativeCount   IssueKind = "negative_count"
	IssueNegativeTotal   IssueKind = "negative_total"
)

// Issue describes a data-quality problem that was resolved by substituting 0.
type Issue struct {
	Index    int
	Period   time.Time
	Category string
	Kind     IssueKind
}

func (i Issue) String() string {
	if i.Category == "" {
		return fmt.Sprintf("record %d (%s): %s", i.Index, i.Period.Format("2006-01"), i.Kind)
	}
	return fmt.Sprintf("record %d (%s): %s %q", i.Index, i.Period.Format("2006-01"), i.Kind, i.Category)
}

type Option func(*Builder)

// WithSuppliedTotal divides by the record's own Total when it is positive,
// instead of the sum of the known categories.
func WithSuppliedTotal() Option {
	return func(b *Builder) {
		b.suppliedTotal = true
	}
}

// WithIssueFunc registers a hook that sees every data-quality issue.
func WithIssueFunc(fn func(Issue)) Option {
	return func(b *Builder) {
		b.onIssue = fn
	}
}

// Builder computes fingerprints against a fixed category list.
// A Builder is immutable after construction and safe for concurrent use.
type Builder struct {
	categories    []string
	suppliedTotal bool
	onIssue       func(Issue)
}

func NewBuilder(categories []string, opts ...Option) (*Builder, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: category list is empty", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(categories))
	for _, key := range categories {
		if key == "" {
			return nil, fmt.Errorf("%w: empty category key", ErrInvalidInput)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidInput, key)
		}
		seen[key] = struct{}{}
	}

	b := &Builder{
		categories: append([]string(nil), categories...),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Categories returns a copy of the canonical category order.
func (b *Builder) Categories() []string {
	return append([]string(nil), b.categories...)
}

// Build returns one fingerprint per record, in input order.
func (b *Builder) Build(records []Record) []Fingerprint {
	out := make([]Fingerprint, len(records))
	for i, r := range records {
		out[i] = Fingerprint{
			Period: r.Period,
			Vector: b.vector(i, r),
		}
	}
	return out
}

func (b *Builder) vector(index int, r Record) []float64 {
	counts := make([]int64, len(b.categories))
	var sum int64
	for j, key := range b.categories {
		c, ok := r.Counts[key]
		if !ok {
			b.report(Issue{Index: index, Period: r.Period, Category: key, Kind: IssueMissingCategory})
			continue
		}
		if c < 0 {
			b.report(Issue{Index: index, Period: r.Period, Category: key, Kind: IssueNegativeCount})
			continue
		}
		counts[j] = c
		sum += c
	}

	total := sum
	if b.suppliedTotal && r.Total != nil {
		switch {
		case *r.Total > 0:
			total = *r.Total
		case *r.Total < 0:
			b.report(Issue{Index: index, Period: r.Period, Kind: IssueNegativeTotal})
		}
	}

	vec := make([]float64, len(counts))
	if total == 0 {
		return vec
	}

	denom := float64(total)
	for j, c := range counts {
		vec[j] = float64(c) / denom
	}
	return vec
}

func (b *Builder) report(issue Issue) {
	if b.onIssue != nil {
		b.onIssue(issue)
	}
}

// Build is a shorthand for NewBuilder followed by Builder.Build.
func Build(records []Record, categories []string, opts ...Option) ([]Fingerprint, error) {
	b, err := NewBuilder(categories, opts...)
	if err != nil {
		return nil, err
	}
	return b.Build(records), nil
}

// Vectors strips the period information, in order.
func Vectors(fps []Fingerprint) [][]float64 {
	out := make([][]float64, len(fps))
	for i, fp := range fps {
		out[i] = fp.Vector
	}
	return out
}
