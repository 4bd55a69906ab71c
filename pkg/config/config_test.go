package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Data.Source)
	assert.Equal(t, "month", cfg.Data.PeriodField)
	assert.Len(t, cfg.Categories, 10)
	assert.Equal(t, "Over Speed (Radar)", cfg.Categories[0].Label)
	assert.Equal(t, "khr_other", cfg.CategoryKeys()[9])
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Len(t, cfg.Assistant.KnowledgeBase, 5)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileCustomCategories(t *testing.T) {
	body := `
data:
  source: csv
  path: ./fines.csv
  periodField: period
categories:
  - key: speeding
    label: Speeding
  - key: parking
    label: Parking
`
	cfg, err := LoadFile(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, "period", cfg.Data.PeriodField)
	assert.Equal(t, []string{"speeding", "parking"}, cfg.CategoryKeys())
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("TRAFFIQ_LLM_APIKEY", "secret")
	t.Setenv("TRAFFIQ_SERVER_PORT", "7070")

	cfg, err := LoadFile(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"UnknownSource", "data:\n  source: parquet\n"},
		{"SQLiteWithoutTable", "data:\n  source: sqlite\n"},
		{"EmptyCategoryKey", "categories:\n  - label: Nameless\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
