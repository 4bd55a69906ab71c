package violations

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffiq/backend/internal/fingerprint"
)

var abTaxonomy = Taxonomy{
	{Key: "A", Label: "Speeding"},
	{Key: "B", Label: "Parking"},
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func loaded(t *testing.T, records []fingerprint.Record, opts ...fingerprint.Option) *Snapshot {
	t.Helper()
	a, err := NewAnalyzer(abTaxonomy, opts...)
	require.NoError(t, err)
	snap, err := a.Load(records)
	require.NoError(t, err)
	return snap
}

func threeMonths() []fingerprint.Record {
	// Deliberately out of order: Load sorts by period.
	return []fingerprint.Record{
		{Period: month(2023, 3), Counts: map[string]int64{"A": 5, "B": 5}},
		{Period: month(2023, 1), Counts: map[string]int64{"A": 10, "B": 0}},
		{Period: month(2023, 2), Counts: map[string]int64{"A": 0, "B": 10}},
	}
}

func TestAnalyzerNotLoaded(t *testing.T) {
	a, err := NewAnalyzer(abTaxonomy)
	require.NoError(t, err)

	assert.False(t, a.Ready())
	_, err = a.Current()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestNewAnalyzerRejectsEmptyTaxonomy(t *testing.T) {
	_, err := NewAnalyzer(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestLoadEmptyDataset(t *testing.T) {
	a, err := NewAnalyzer(abTaxonomy)
	require.NoError(t, err)

	_, err = a.Load(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
	assert.False(t, a.Ready())
}

func TestLoadSortsPeriods(t *testing.T) {
	snap := loaded(t, threeMonths())

	periods := snap.Periods()
	require.Len(t, periods, 3)
	assert.Equal(t, "January 2023", periods[0].Label)
	assert.Equal(t, "February 2023", periods[1].Label)
	assert.Equal(t, "March 2023", periods[2].Label)
	assert.Equal(t, int64(10), periods[2].Total)
	assert.Len(t, snap.Version(), 64)
}

func TestSimilar(t *testing.T) {
	snap := loaded(t, threeMonths())

	matches, err := snap.Similar(0, DefaultTopK)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, 2, matches[0].Index)
	assert.Equal(t, "March 2023", matches[0].Label)
	assert.InDelta(t, 0.7071, matches[0].Score, 1e-4)
	assert.InDelta(t, 70.71, matches[0].Percent, 1e-2)
	assert.Equal(t, 1, matches[1].Index)
	assert.Equal(t, 0.0, matches[1].Score)

	one, err := snap.Similar(0, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = snap.Similar(0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = snap.Similar(3, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPattern(t *testing.T) {
	snap := loaded(t, []fingerprint.Record{
		{Period: month(2023, 1), Counts: map[string]int64{"A": 1, "B": 3}},
		{Period: month(2023, 2), Counts: map[string]int64{"A": 2, "B": 2}},
	})

	bars, err := snap.Pattern(0)
	require.NoError(t, err)
	assert.Equal(t, []Bar{
		{Category: "B", Label: "Parking", Percent: 75},
		{Category: "A", Label: "Speeding", Percent: 25},
	}, bars)

	tied, err := snap.Pattern(1)
	require.NoError(t, err)
	assert.Equal(t, "A", tied[0].Category)
	assert.Equal(t, "B", tied[1].Category)

	overall := snap.OverallPattern()
	assert.Equal(t, "B", overall[0].Category)
	assert.InDelta(t, 62.5, overall[0].Percent, 1e-9)

	_, err = snap.Pattern(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSuppliedTotalOption(t *testing.T) {
	total := int64(20)
	snap := loaded(t, []fingerprint.Record{
		{Period: month(2023, 1), Counts: map[string]int64{"A": 5, "B": 5}, Total: &total},
	}, fingerprint.WithSuppliedTotal())

	bars, err := snap.Pattern(0)
	require.NoError(t, err)
	assert.InDelta(t, 25, bars[0].Percent, 1e-9)
	assert.Equal(t, int64(20), snap.Periods()[0].Total)
}

func TestResolve(t *testing.T) {
	snap := loaded(t, threeMonths())

	tests := []struct {
		ref      string
		expected int
	}{
		{"0", 0},
		{"2", 2},
		{"2023-02", 1},
		{"2023-03-01", 2},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			idx, err := snap.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, idx)
		})
	}

	for _, bad := range []string{"7", "-1", "2019-05", "someday"} {
		_, err := snap.Resolve(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestTrend(t *testing.T) {
	snap := loaded(t, []fingerprint.Record{
		{Period: month(2022, 1), Counts: map[string]int64{"A": 4, "B": 1}},
		{Period: month(2023, 1), Counts: map[string]int64{"A": 7, "B": 1}},
		{Period: month(2023, 2), Counts: map[string]int64{"B": 1}},
	})

	trend, err := snap.Trend("A")
	require.NoError(t, err)
	assert.Equal(t, "Speeding", trend.Category.Label)
	require.Len(t, trend.Series, 2)

	assert.Equal(t, 2022, trend.Series[0].Year)
	require.NotNil(t, trend.Series[0].Months[0])
	assert.Equal(t, int64(4), *trend.Series[0].Months[0])
	assert.Nil(t, trend.Series[0].Months[1])

	assert.Equal(t, 2023, trend.Series[1].Year)
	assert.Equal(t, int64(7), *trend.Series[1].Months[0])
	require.NotNil(t, trend.Series[1].Months[1])
	assert.Equal(t, int64(0), *trend.Series[1].Months[1])

	_, err = snap.Trend("Z")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOutliers(t *testing.T) {
	snap := loaded(t, []fingerprint.Record{
		{Period: month(2023, 1), Counts: map[string]int64{"A": 9, "B": 1}},
		{Period: month(2023, 2), Counts: map[string]int64{"A": 8, "B": 2}},
		{Period: month(2023, 3), Counts: map[string]int64{"A": 0, "B": 10}},
	})

	out, err := snap.Outliers(1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Index)

	_, err = snap.Outliers(0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSummary(t *testing.T) {
	summary := loaded(t, threeMonths()).Summary()

	assert.True(t, strings.HasPrefix(summary, "Dataset: 3 monthly periods from January 2023 to March 2023."))
	assert.Contains(t, summary, "Latest period March 2023 (10 violations): Speeding 50.0%, Parking 50.0%")
	assert.Contains(t, summary, "Periods most similar to March 2023: January 2023 (70.7%), February 2023 (70.7%)")
}

func TestLoadSwapsSnapshot(t *testing.T) {
	a, err := NewAnalyzer(abTaxonomy)
	require.NoError(t, err)

	first, err := a.Load(threeMonths())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := a.Current()
			if assert.NoError(t, err) {
				_, err = snap.Similar(0, 2)
				assert.NoError(t, err)
			}
		}()
	}

	second, err := a.Load(threeMonths()[:2])
	require.NoError(t, err)
	wg.Wait()

	current, err := a.Current()
	require.NoError(t, err)
	assert.Same(t, second, current)
	assert.Equal(t, 3, first.Len())
	assert.NotEqual(t, first.Version(), second.Version())
}
