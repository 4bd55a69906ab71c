// Package dataset loads per-period violation tables from JSON, CSV or SQLite
// into fingerprint records.
//
// Loading is permissive: missing, empty or non-numeric category values become
// 0 and are recorded as issues instead of failing the load. Only rows whose
// period cannot be parsed are dropped, since they cannot be placed in time.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/traffiq/backend/internal/fingerprint"
)

const (
	IssueMissingValue = "missing_value"
	IssueNonNumeric   = "non_numeric"
	IssueNonFinite    = "non_finite"
	IssueBadPeriod    = "bad_period"
)

type Schema struct {
	PeriodField string
	TotalField  string
	Categories  []string
}

func (s Schema) validate() error {
	if s.PeriodField == "" {
		return fmt.Errorf("period field is required")
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	return nil
}

type Issue struct {
	Row   int
	Field string
	Kind  string
	Value string
}

// Table is the result of one load. Records are sorted by period.
type Table struct {
	Source  string
	Records []fingerprint.Record
	Issues  []Issue
	Skipped int
}

// ParseRows converts loosely typed rows into records.
func ParseRows(rows []map[string]any, schema Schema) *Table {
	t := &Table{Records: make([]fingerprint.Record, 0, len(rows))}

	for i, row := range rows {
		period, err := ParsePeriod(row[schema.PeriodField])
		if err != nil {
			t.Issues = append(t.Issues, Issue{Row: i, Field: schema.PeriodField, Kind: IssueBadPeriod, Value: fmt.Sprint(row[schema.PeriodField])})
			t.Skipped++
			continue
		}

		rec := fingerprint.Record{
			Period: period,
			Counts: make(map[string]int64, len(schema.Categories)),
		}

		for _, key := range schema.Categories {
			raw, ok := row[key]
			if !ok {
				// Absent columns are padded by the fingerprint builder.
				continue
			}
			n, kind := coerceCount(raw)
			if kind != "" {
				t.Issues = append(t.Issues, Issue{Row: i, Field: key, Kind: kind, Value: fmt.Sprint(raw)})
			}
			rec.Counts[key] = n
		}

		if schema.TotalField != "" {
			if raw, ok := row[schema.TotalField]; ok {
				n, kind := coerceCount(raw)
				if kind != "" {
					t.Issues = append(t.Issues, Issue{Row: i, Field: schema.TotalField, Kind: kind, Value: fmt.Sprint(raw)})
				} else {
					rec.Total = &n
				}
			}
		}

		t.Records = append(t.Records, rec)
	}

	sort.SliceStable(t.Records, func(a, b int) bool {
		return t.Records[a].Period.Before(t.Records[b].Period)
	})

	return t
}

// coerceCount returns the rounded count and the issue kind, if any.
func coerceCount(raw any) (int64, string) {
	if raw == nil {
		return 0, IssueMissingValue
	}
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
			return 0, IssueMissingValue
		}
		raw = s
	}

	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, IssueNonNumeric
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, IssueNonFinite
	}
	return int64(math.Round(f)), ""
}

var periodLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006/01/02",
	"2006/01",
	"01/2006",
	"January 2006",
	"Jan 2006",
	"Jan-2006",
}

// ParsePeriod accepts the date formats seen in published violation tables
// and epoch timestamps in seconds or milliseconds. Results are in UTC.
func ParsePeriod(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("period is empty")
	case time.Time:
		return x.UTC(), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid period %q: %w", x, err)
		}
		return fromEpoch(n), nil
	case float64:
		return fromEpoch(int64(x)), nil
	case int64:
		return fromEpoch(x), nil
	case int:
		return fromEpoch(int64(x)), nil
	case []byte:
		return ParsePeriod(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, fmt.Errorf("period is empty")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
			return fromEpoch(n), nil
		}
		for _, layout := range periodLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid period %q: %w", s, err)
		}
		return t.UTC(), nil
	default:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid period %v: %w", v, err)
		}
		return t.UTC(), nil
	}
}

func fromEpoch(n int64) time.Time {
	// pandas writes datetimes as epoch milliseconds by default.
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
