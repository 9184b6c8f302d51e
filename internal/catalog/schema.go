package catalog

import "surveyetl/internal/storage"

// JSONSchema returns the JSON Schema object describing one record of s.
func (s Stream) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Table.Columns))
	for _, c := range s.Table.Columns {
		props[c.Name] = columnSchema(c.Type)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func columnSchema(typ string) map[string]any {
	switch typ {
	case storage.TypeDouble:
		return map[string]any{"type": []string{"number", "null"}}
	case storage.TypeBool:
		return map[string]any{"type": []string{"boolean", "null"}}
	case storage.TypeTimestamp:
		return map[string]any{"type": []string{"string", "null"}, "format": "date-time"}
	default:
		return map[string]any{"type": []string{"string", "null"}}
	}
}
