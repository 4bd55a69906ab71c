package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONFile reads an array of row objects, or an object wrapping that array
// under "data" or "records".
type JSONFile struct {
	Path   string
	Schema Schema
}

func (s *JSONFile) Name() string { return "json:" + s.Path }

func (s *JSONFile) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	rows, err := DecodeJSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.Path, err)
	}

	return finish(s.Name(), ParseRows(rows, s.Schema)), nil
}

func DecodeJSON(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		for _, key := range []string{"data", "records"} {
			if inner, ok := wrapped[key]; ok {
				data = inner
				break
			}
		}
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
