package violations

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traffiq/backend/internal/dataset"
	"github.com/traffiq/backend/internal/fingerprint"
	"github.com/traffiq/backend/internal/similarity"
)

// DefaultTopK matches the four cards the dashboard shows next to the chart.
const DefaultTopK = 4

// Snapshot is an immutable view of one loaded dataset.
type Snapshot struct {
	taxonomy     Taxonomy
	records      []fingerprint.Record
	periods      []Period
	fingerprints []fingerprint.Fingerprint
	overall      fingerprint.Fingerprint
	matrix       similarity.Matrix
	version      string
	loadedAt     time.Time
}

type Bar struct {
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Percent  float64 `json:"percent"`
}

type Match struct {
	Index   int       `json:"index"`
	Period  time.Time `json:"period"`
	Label   string    `json:"label"`
	Score   float64   `json:"score"`
	Percent float64   `json:"percent"`
}

type TrendSeries struct {
	Year int `json:"year"`
	// Months holds January..December; nil means no data for that month.
	Months [12]*int64 `json:"months"`
}

type Trend struct {
	Category Category      `json:"category"`
	Series   []TrendSeries `json:"series"`
}

func (s *Snapshot) Len() int { return len(s.periods) }

func (s *Snapshot) Version() string { return s.version }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) Taxonomy() Taxonomy { return s.taxonomy }

func (s *Snapshot) Periods() []Period {
	return append([]Period(nil), s.periods...)
}

func (s *Snapshot) Fingerprints() []fingerprint.Fingerprint {
	return append([]fingerprint.Fingerprint(nil), s.fingerprints...)
}

// Matrix returns the shared similarity matrix; callers must not modify it.
func (s *Snapshot) Matrix() similarity.Matrix { return s.matrix }

func (s *Snapshot) checkIndex(index int) error {
	if index < 0 || index >= len(s.periods) {
		return fmt.Errorf("%w: period index %d out of range [0, %d)", ErrInvalidInput, index, len(s.periods))
	}
	return nil
}

// Resolve maps a period reference to an index. A reference is either the
// index itself or a date naming the period's month, such as "2023-01".
func (s *Snapshot) Resolve(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if err := s.checkIndex(n); err != nil {
			return 0, err
		}
		return n, nil
	}

	t, err := dataset.ParsePeriod(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, p := range s.periods {
		if p.Period.Year() == t.Year() && p.Period.Month() == t.Month() {
			return p.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no period for %s", ErrInvalidInput, t.Format(LabelLayout))
}

// Pattern returns the Pareto series of one period: each category's share in
// percent, largest first, ties in taxonomy order.
func (s *Snapshot) Pattern(index int) ([]Bar, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	return s.bars(s.fingerprints[index]), nil
}

// OverallPattern is Pattern over the summed counts of every period.
func (s *Snapshot) OverallPattern() []Bar {
	return s.bars(s.overall)
}

func (s *Snapshot) bars(fp fingerprint.Fingerprint) []Bar {
	out := make([]Bar, len(s.taxonomy))
	for i, c := range s.taxonomy {
		out[i] = Bar{Category: c.Key, Label: c.Label, Percent: fp.Vector[i] * 100}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percent > out[j].Percent
	})
	return out
}

// Similar returns up to k other periods whose violation mix is closest to
// the given period.
func (s *Snapshot) Similar(index, k int) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	ranked, err := s.matrix.Rank(index)
	if err != nil {
		return nil, err
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]Match, len(ranked))
	for i, n := range ranked {
		p := s.periods[n.Index]
		out[i] = Match{
			Index:   n.Index,
			Period:  p.Period,
			Label:   p.Label,
			Score:   n.Score,
			Percent: n.Score * 100,
		}
	}
	return out, nil
}

// Outliers returns the n periods with the lowest mean similarity to all
// other periods, least typical first.
func (s *Snapshot) Outliers(n int) ([]Match, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidInput, n)
	}

	size := s.matrix.Len()
	out := make([]Match, size)
	for i := 0; i < size; i++ {
		var sum float64
		for j := 0; j < size; j++ {
			if i != j {
				sum += s.matrix.At(i, j)
			}
		}
		mean := 0.0
		if size > 1 {
			mean = sum / float64(size-1)
		}
		p := s.periods[i]
		out[i] = Match{Index: i, Period: p.Period, Label: p.Label, Score: mean, Percent: mean * 100}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score < out[j].Score
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Trend sums one category per calendar month, one series per year.
func (s *Snapshot) Trend(category string) (*Trend, error) {
	cat, _, err := s.taxonomy.Lookup(category)
	if err != nil {
		return nil, err
	}

	byYear := make(map[int]*TrendSeries)
	for _, r := range s.records {
		y := r.Period.Year()
		series, ok := byYear[y]
		if !ok {
			series = &TrendSeries{Year: y}
			byYear[y] = series
		}

		m := int(r.Period.Month()) - 1
		if series.Months[m] == nil {
			series.Months[m] = new(int64)
		}
		if c := r.Counts[category]; c > 0 {
			*series.Months[m] += c
		}
	}

	trend := &Trend{Category: cat, Series: make([]TrendSeries, 0, len(byYear))}
	for _, series := range byYear {
		trend.Series = append(trend.Series, *series)
	}
	sort.Slice(trend.Series, func(i, j int) bool {
		return trend.Series[i].Year < trend.Series[j].Year
	})
	return trend, nil
}
