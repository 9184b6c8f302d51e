package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EmitOptions expands each question's value-label dictionary into one
// OptionRecord per entry. Questions without a dictionary contribute nothing.
// Dictionary order is preserved.
func EmitOptions(questions []QuestionRecord) []OptionRecord {
	var out []OptionRecord
	for _, q := range questions {
		for _, vl := range q.ValueLabels {
			out = append(out, OptionRecord{
				QuestionID:   q.QuestionID,
				OptionID:     FormatCode(vl.Value),
				OptionLabel:  vl.Label,
				SourceFile:   q.SourceFile,
				FileModified: q.FileModified,
			})
		}
	}
	return out
}

// FormatCode renders a coded value canonically: integral floats without a
// fraction ("1" for 1.0), other floats in shortest form, strings trimmed.
func FormatCode(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return FormatCode(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return FormatCode(f)
		}
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
