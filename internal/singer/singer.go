// Package singer writes records as Singer JSON lines: SCHEMA, RECORD and
// STATE messages, one per line.
package singer

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"surveyetl/internal/catalog"
	"surveyetl/internal/survey"
)

type schemaMessage struct {
	Type               string         `json:"type"`
	Stream             string         `json:"stream"`
	Schema             map[string]any `json:"schema"`
	KeyProperties      []string       `json:"key_properties"`
	BookmarkProperties []string       `json:"bookmark_properties,omitempty"`
}

type recordMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Record        map[string]any `json:"record"`
	TimeExtracted string         `json:"time_extracted,omitempty"`
}

type stateMessage struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Writer emits Singer messages to an io.Writer. It is safe for concurrent
// use; the records of one file are never interleaved with another's.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc, now: time.Now}
}

// WriteSchemas writes one SCHEMA message per stream.
func (w *Writer) WriteSchemas(streams []catalog.Stream) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range streams {
		msg := schemaMessage{
			Type:               "SCHEMA",
			Stream:             s.Name,
			Schema:             s.JSONSchema(),
			KeyProperties:      s.KeyProperties,
			BookmarkProperties: []string{s.ReplicationKey},
		}
		if err := w.enc.Encode(msg); err != nil {
			return fmt.Errorf("singer: schema %s: %w", s.Name, err)
		}
	}
	return nil
}

// WriteFile writes the RECORD messages of one processed file for every
// stream, in stream order. It returns the number of records written.
func (w *Writer) WriteFile(streams []catalog.Stream, r *survey.Result) (int, error) {
	batches := make([][]map[string]any, len(streams))
	for i, s := range streams {
		recs, err := catalog.Records(s, r)
		if err != nil {
			return 0, err
		}
		batches[i] = recs
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	extracted := w.now().UTC().Format(time.RFC3339Nano)
	n := 0
	for i, s := range streams {
		for _, rec := range batches[i] {
			msg := recordMessage{Type: "RECORD", Stream: s.Name, Record: rec, TimeExtracted: extracted}
			if err := w.enc.Encode(msg); err != nil {
				return n, fmt.Errorf("singer: record %s: %w", s.Name, err)
			}
			n++
		}
	}
	return n, nil
}

// WriteState writes a STATE message.
func (w *Writer) WriteState(value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(stateMessage{Type: "STATE", Value: value}); err != nil {
		return fmt.Errorf("singer: state: %w", err)
	}
	return nil
}
