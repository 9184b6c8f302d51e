// Package decode turns exported survey files into a survey.Table plus its
// survey.Metadata.
//
// Two formats are supported:
//   - csv: a CSV data file with a JSON metadata sidecar next to it
//   - json: a single JSON document holding both the columns and the rows
//
// Every failure wraps survey.ErrUnreadableSource.
package decode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"surveyetl/internal/config"
	"surveyetl/internal/survey"
)

// Decoder reads one local file.
type Decoder interface {
	Decode(ctx context.Context, path string) (*survey.Table, *survey.Metadata, error)
}

// New builds the decoder for kind from its option bag.
//
// Options:
//   - encoding: windows-1252 | iso-8859-1 | iso-8859-15 | utf-8 (default)
//   - comma: CSV delimiter (default ',')
//   - trim_space: trim edge spaces of CSV cells (default true)
//   - metadata_suffix: CSV sidecar suffix (default ".meta.json")
//   - header_map: CSV header renames
//   - normalize_labels: apply Unicode NFC to labels (default true)
func New(kind string, opts config.Options) (Decoder, error) {
	normalize := opts.Bool("normalize_labels", true)

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case config.DecoderCSV, "":
		enc, err := lookupEncoding(opts.String("encoding", ""))
		if err != nil {
			return nil, err
		}
		return &CSVDecoder{
			Comma:           opts.Rune("comma", ','),
			TrimSpace:       opts.Bool("trim_space", true),
			Encoding:        enc,
			MetadataSuffix:  opts.String("metadata_suffix", DefaultMetadataSuffix),
			HeaderMap:       opts.StringMap("header_map"),
			NormalizeLabels: normalize,
		}, nil
	case config.DecoderJSON:
		return &JSONDecoder{NormalizeLabels: normalize}, nil
	default:
		return nil, fmt.Errorf("decode: unknown decoder kind %q (want csv|json)", kind)
	}
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15, nil
	default:
		return nil, fmt.Errorf("decode: unsupported encoding %q", name)
	}
}

func unreadable(path string, err error) error {
	return fmt.Errorf("decode %s: %w: %w", path, survey.ErrUnreadableSource, err)
}

// metadataDoc is the on-disk column metadata shared by both formats.
type metadataDoc struct {
	Columns []columnDoc `json:"columns"`
}

type columnDoc struct {
	Name        string      `json:"name"`
	Label       *string     `json:"label"`
	Format      string      `json:"format"`
	Type        string      `json:"type"`
	Measure     *string     `json:"measure"`
	ValueLabels valueLabels `json:"value_labels"`
}

// valueLabels accepts either an ordered list of {"value","label"} pairs or an
// object keyed by value. Object keys are emitted in sorted order.
type valueLabels []survey.ValueLabel

func (v *valueLabels) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		*v = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var m map[string]string
		if err := dec.Decode(&m); err != nil {
			return err
		}
		out := make(valueLabels, 0, len(m))
		for _, k := range sortedCodes(m) {
			out = append(out, survey.ValueLabel{Value: codeValue(k), Label: m[k]})
		}
		*v = out
		return nil
	}

	var pairs []struct {
		Value any    `json:"value"`
		Label string `json:"label"`
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&pairs); err != nil {
		return err
	}
	out := make(valueLabels, 0, len(pairs))
	for _, p := range pairs {
		val, err := scalar(p.Value)
		if err != nil {
			return fmt.Errorf("value label %q: %w", p.Label, err)
		}
		out = append(out, survey.ValueLabel{Value: val, Label: p.Label})
	}
	*v = out
	return nil
}

// scalar converts a decoded JSON value into a table cell: numbers become
// float64, strings and booleans pass through, null is missing.
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q out of range", x.String())
		}
		return f, nil
	case float64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

// toMetadata converts the document, optionally NFC-normalizing labels.
func (d metadataDoc) toMetadata(normalize bool) (*survey.Metadata, error) {
	cols := make([]survey.ColumnMeta, 0, len(d.Columns))
	seen := make(map[string]bool, len(d.Columns))
	for i, c := range d.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("metadata column %d has no name", i+1)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("metadata column %q declared twice", c.Name)
		}
		seen[c.Name] = true

		cm := survey.ColumnMeta{
			Name:         c.Name,
			Label:        c.Label,
			PhysicalType: strings.TrimSpace(c.Format),
			StorageType:  c.Type,
			Measure:      c.Measure,
			ValueLabels:  []survey.ValueLabel(c.ValueLabels),
		}
		if normalize {
			cm.Label = nfcPtr(cm.Label)
			for j := range cm.ValueLabels {
				cm.ValueLabels[j].Label = norm.NFC.String(cm.ValueLabels[j].Label)
			}
		}
		cols = append(cols, cm)
	}
	return survey.NewMetadata(cols), nil
}

func nfcPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := norm.NFC.String(*s)
	return &v
}

// numberValue converts a JSON number to float64, falling back to its text.
func numberValue(n json.Number) any {
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// codeValue interprets an object key as a numeric code when it parses as one.
func codeValue(k string) any {
	return numberValue(json.Number(k))
}
