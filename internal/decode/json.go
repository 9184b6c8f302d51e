package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"surveyetl/internal/survey"
)

// JSONDecoder reads a single JSON document:
//
//	{"columns": [...column metadata...], "rows": [[...], ...]}
//
// Rows may also be objects keyed by column name; absent keys are missing
// values. Column order is the order of "columns".
type JSONDecoder struct {
	NormalizeLabels bool
}

type jsonDoc struct {
	metadataDoc
	Rows []json.RawMessage `json:"rows"`
}

// Decode implements Decoder.
func (d *JSONDecoder) Decode(ctx context.Context, path string) (*survey.Table, *survey.Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, unreadable(path, err)
	}

	var doc jsonDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil, unreadable(path, err)
	}
	if len(doc.Columns) == 0 {
		return nil, nil, unreadable(path, fmt.Errorf("document has no columns"))
	}

	meta, err := doc.toMetadata(d.NormalizeLabels)
	if err != nil {
		return nil, nil, unreadable(path, err)
	}

	t := &survey.Table{Columns: meta.Names()}
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		index[c] = i
	}

	t.Rows = make([][]any, 0, len(doc.Rows))
	for i, raw := range doc.Rows {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		row, err := decodeRow(raw, len(t.Columns), index)
		if err != nil {
			return nil, nil, unreadable(path, fmt.Errorf("row %d: %w", i+1, err))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, meta, nil
}

func decodeRow(raw json.RawMessage, width int, index map[string]int) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, err
		}
		row := make([]any, width)
		for k, v := range obj {
			i, ok := index[k]
			if !ok {
				return nil, fmt.Errorf("unknown column %q", k)
			}
			cell, err := scalar(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", k, err)
			}
			row[i] = cell
		}
		return row, nil
	}

	var arr []any
	if err := dec.Decode(&arr); err != nil {
		return nil, err
	}
	row := make([]any, len(arr))
	for i, v := range arr {
		cell, err := scalar(v)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i+1, err)
		}
		row[i] = cell
	}
	return row, nil
}
