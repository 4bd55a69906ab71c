package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("loud", "json", "stdout")
	assert.Error(t, err)
}

func TestInitWritesJSONToFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "traffiq.log")
	require.NoError(t, Init("debug", "json", path))

	Info("dataset loaded", zap.Int("periods", 36))
	Debug("fingerprint padded", zap.String("category", "khr_other"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(data)
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "dataset loaded", entry["message"])
	assert.EqualValues(t, 36, entry["periods"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named("similarity"))
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}
