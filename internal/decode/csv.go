package decode

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"surveyetl/internal/survey"
)

// DefaultMetadataSuffix is appended to the data file path to find its sidecar.
const DefaultMetadataSuffix = ".meta.json"

// CSVDecoder reads a CSV data file and its JSON metadata sidecar.
//
// The sidecar is looked up at path+MetadataSuffix, then at the path with its
// extension replaced by MetadataSuffix. The header row gives the declared
// column order. Cells of number-typed columns are parsed as float64; all
// other cells stay strings. Empty cells are missing values.
type CSVDecoder struct {
	Comma           rune
	TrimSpace       bool
	Encoding        encoding.Encoding // nil means UTF-8
	MetadataSuffix  string
	HeaderMap       map[string]string
	NormalizeLabels bool
}

// Decode implements Decoder.
func (d *CSVDecoder) Decode(ctx context.Context, path string) (*survey.Table, *survey.Metadata, error) {
	meta, err := d.readSidecar(path)
	if err != nil {
		return nil, nil, unreadable(path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, unreadable(path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if d.Encoding != nil {
		r = transform.NewReader(f, d.Encoding.NewDecoder())
	}

	t, err := d.readTable(ctx, r, meta)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, unreadable(path, err)
	}
	return t, meta, nil
}

func (d *CSVDecoder) sidecarPaths(path string) []string {
	suffix := d.MetadataSuffix
	if suffix == "" {
		suffix = DefaultMetadataSuffix
	}
	out := []string{path + suffix}
	if ext := filepath.Ext(path); ext != "" {
		out = append(out, strings.TrimSuffix(path, ext)+suffix)
	}
	return out
}

func (d *CSVDecoder) readSidecar(path string) (*survey.Metadata, error) {
	var lastErr error
	for _, p := range d.sidecarPaths(path) {
		b, err := os.ReadFile(p)
		if err != nil {
			lastErr = err
			continue
		}
		var doc metadataDoc
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", p, err)
		}
		return doc.toMetadata(d.NormalizeLabels)
	}
	return nil, fmt.Errorf("metadata sidecar not found: %w", lastErr)
}

func (d *CSVDecoder) readTable(ctx context.Context, r io.Reader, meta *survey.Metadata) (*survey.Table, error) {
	cr := csv.NewReader(r)
	if d.Comma != 0 {
		cr.Comma = d.Comma
	}
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &survey.Table{Columns: make([]string, len(hdr))}
	numeric := make([]bool, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if hasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		if mapped, ok := d.HeaderMap[h]; ok {
			h = mapped
		}
		t.Columns[i] = h
		if cm, ok := meta.Lookup(h); ok {
			typ, err := survey.ClassifyType(cm.PhysicalType)
			numeric[i] = err == nil && typ == survey.AnswerNumber
		}
	}

	for {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv read line %d: %w", line, err)
		}

		// Short rows keep their width; the processor rejects ragged input.
		row := make([]any, len(rec))
		for i, v := range rec {
			if d.TrimSpace && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				continue
			}
			if i < len(numeric) && numeric[i] {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d column %q: %w: %q", line, t.Columns[i], survey.ErrInvalidNumber, v)
				}
				row[i] = f
				continue
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
}

// hasEdgeSpace reports whether s starts or ends with whitespace.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return unicode.IsSpace(rune(s[0])) || unicode.IsSpace(rune(s[len(s)-1]))
}
