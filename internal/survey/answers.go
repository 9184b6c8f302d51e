package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MeltAnswers reshapes every non-root column from wide to long: one record
// per (respondent, question) in row-major, declared-column order.
//
// Each answer is routed by its question's physical type into AnswerText
// ("A" codes) or AnswerNumber ("F" codes). Missing values and empty text
// produce no record. An unclassifiable type code aborts the whole file.
func MeltAnswers(t *Table, meta *Metadata, roots RootColumns, src SourceFile) ([]AnswerRecord, error) {
	if err := roots.Validate(t); err != nil {
		return nil, err
	}
	idIdx := t.ColumnIndex(roots.Identifier())

	type questionCol struct {
		name string
		idx  int
		typ  AnswerType
	}

	// Classify once per column; the classification does not depend on the row.
	var cols []questionCol
	for i, c := range t.Columns {
		if roots.Contains(c) {
			continue
		}
		cm, ok := meta.Lookup(c)
		if !ok {
			return nil, fmt.Errorf("survey: melt: %w: %q", ErrMissingMetadata, c)
		}
		typ, err := classifyColumn(c, cm.PhysicalType)
		if err != nil {
			return nil, fmt.Errorf("survey: melt: %w", err)
		}
		cols = append(cols, questionCol{name: c, idx: i, typ: typ})
	}

	out := make([]AnswerRecord, 0, len(t.Rows)*len(cols)/2)
	for r, row := range t.Rows {
		var id any
		if idIdx < len(row) {
			id = row[idIdx]
		}
		for _, qc := range cols {
			if qc.idx >= len(row) {
				continue
			}
			raw := row[qc.idx]
			if IsMissing(raw) {
				continue
			}

			rec := AnswerRecord{
				RespondentID: id,
				QuestionID:   qc.name,
				SourceFile:   src.Name,
				FileModified: src.Modified,
			}
			switch qc.typ {
			case AnswerString:
				s := stringify(raw)
				if s == "" {
					continue
				}
				rec.AnswerText = &s
			case AnswerNumber:
				f, ok, err := toNumber(raw)
				if err != nil {
					return nil, fmt.Errorf("survey: melt: row %d column %q: %w", r+1, qc.name, err)
				}
				if !ok {
					continue
				}
				rec.AnswerNumber = &f
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// stringify renders a non-missing cell as text.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// toNumber converts a non-missing cell to float64. ok is false when the cell
// is empty text (treated as missing).
func toNumber(v any) (f float64, ok bool, err error) {
	switch x := v.(type) {
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", ErrInvalidNumber, x.String())
		}
		return f, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", ErrInvalidNumber, x)
		}
		return f, !math.IsNaN(f), nil
	default:
		return 0, false, fmt.Errorf("%w: unsupported cell type %T", ErrInvalidNumber, v)
	}
}
