package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffiq/backend/pkg/config"
)

var testSchema = Schema{
	PeriodField: "month",
	TotalField:  "total",
	Categories:  []string{"speed", "signal", "parking"},
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParsePeriod(t *testing.T) {
	jan := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
	}{
		{"ISODate", "2023-01-01"},
		{"YearMonth", "2023-01"},
		{"RFC3339", "2023-01-01T00:00:00Z"},
		{"MonthName", "January 2023"},
		{"ShortMonthName", "Jan 2023"},
		{"EpochMillis", float64(jan.UnixMilli())},
		{"EpochMillisString", "1672531200000"},
		{"EpochSeconds", jan.Unix()},
		{"JSONNumber", json.Number("1672531200000")},
		{"Time", jan.In(time.FixedZone("AST", 3*3600))},
		{"Bytes", []byte("2023-01-01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			require.NoError(t, err)
			assert.True(t, jan.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []any{nil, "", "not a month"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseRowsCoercesValues(t *testing.T) {
	rows := []map[string]any{
		{"month": "2023-02", "speed": "1,200", "signal": nil, "parking": "n/a", "total": 1300.0},
		{"month": "2023-01", "speed": 10.4, "signal": "NaN", "total": "bad"},
		{"month": "sometime", "speed": 1.0},
	}

	table := ParseRows(rows, testSchema)
	require.Len(t, table.Records, 2)
	assert.Equal(t, 1, table.Skipped)

	// Sorted by period.
	first, second := table.Records[0], table.Records[1]
	assert.Equal(t, time.January, first.Period.Month())
	assert.Equal(t, map[string]int64{"speed": 10, "signal": 0}, first.Counts)
	assert.Nil(t, first.Total)

	assert.Equal(t, map[string]int64{"speed": 1200, "signal": 0, "parking": 0}, second.Counts)
	require.NotNil(t, second.Total)
	assert.Equal(t, int64(1300), *second.Total)

	kinds := map[string]int{}
	for _, issue := range table.Issues {
		kinds[issue.Kind]++
	}
	assert.Equal(t, map[string]int{
		IssueMissingValue: 2,
		IssueNonNumeric:   2,
		IssueBadPeriod:    1,
	}, kinds)
}

func TestJSONFileLoad(t *testing.T) {
	body := `[
		{"month": 1675209600000, "speed": 30, "signal": 10, "parking": 0, "total": 40},
		{"month": 1672531200000, "speed": 5, "signal": 5, "parking": 10, "total": 20}
	]`
	src := &JSONFile{Path: writeFile(t, "viola.json", body), Schema: testSchema}

	table, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Records, 2)

	assert.Equal(t, "json:"+src.Path, table.Source)
	assert.Equal(t, time.January, table.Records[0].Period.Month())
	assert.Equal(t, int64(10), table.Records[0].Counts["parking"])
	assert.Empty(t, table.Issues)
}

func TestDecodeJSONWrapped(t *testing.T) {
	rows, err := DecodeJSON(strings.NewReader(`{"data": [{"month": "2023-01"}]}`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = DecodeJSON(strings.NewReader(`{"data": 3}`))
	assert.Error(t, err)
}

func TestJSONFileMissing(t *testing.T) {
	src := &JSONFile{Path: filepath.Join(t.TempDir(), "nope.json"), Schema: testSchema}
	_, err := src.Load(context.Background())
	assert.Error(t, err)
}

func TestCSVFileLoad(t *testing.T) {
	body := "month, speed, signal, total\n2023-01, 4, 6, 10\n2023-02, 7, , 7\n"
	src := &CSVFile{Path: writeFile(t, "viola.csv", body), Schema: testSchema}

	table, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Records, 2)

	assert.Equal(t, map[string]int64{"speed": 4, "signal": 6}, table.Records[0].Counts)
	assert.Equal(t, map[string]int64{"speed": 7, "signal": 0}, table.Records[1].Counts)
	require.Len(t, table.Issues, 1)
	assert.Equal(t, IssueMissingValue, table.Issues[0].Kind)
	assert.Equal(t, "signal", table.Issues[0].Field)
}

func TestDecodeCSVEmpty(t *testing.T) {
	rows, err := DecodeCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteTableLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE monthly (month TEXT, speed INTEGER, signal REAL, parking TEXT, total INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO monthly VALUES ('2023-02-01', 3, 1.0, '1', 5), ('2023-01-01', 8, 2.0, NULL, 10)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src := &SQLiteTable{Path: path, Table: "monthly", Schema: testSchema}
	table, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Records, 2)

	assert.Equal(t, map[string]int64{"speed": 8, "signal": 2, "parking": 0}, table.Records[0].Counts)
	assert.Equal(t, map[string]int64{"speed": 3, "signal": 1, "parking": 1}, table.Records[1].Counts)
	assert.Equal(t, int64(10), *table.Records[0].Total)
	require.Len(t, table.Issues, 1)
	assert.Equal(t, IssueMissingValue, table.Issues[0].Kind)
}

func TestSQLiteTableRejectsBadIdentifier(t *testing.T) {
	src := &SQLiteTable{Path: "unused.db", Table: "monthly; DROP TABLE x", Schema: testSchema}
	_, err := src.Load(context.Background())
	assert.ErrorContains(t, err, "invalid table name")
}

func TestNewSource(t *testing.T) {
	cats := []string{"speed"}

	src, err := NewSource(config.DataConfig{Source: "csv", Path: "a.csv", PeriodField: "month"}, cats)
	require.NoError(t, err)
	assert.IsType(t, &CSVFile{}, src)

	src, err = NewSource(config.DataConfig{Source: "sqlite", Path: "a.db", Table: "t", PeriodField: "month"}, cats)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteTable{}, src)

	_, err = NewSource(config.DataConfig{Source: "xlsx", PeriodField: "month"}, cats)
	assert.Error(t, err)

	_, err = NewSource(config.DataConfig{Source: "json"}, cats)
	assert.Error(t, err)
}
