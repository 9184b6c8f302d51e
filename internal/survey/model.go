// Package survey reshapes a decoded survey export (a wide table plus
// per-column metadata) into the four relational record streams: interviews,
// interview answers, questions and question options.
//
// Every operation in this package is a pure function of its explicit inputs.
// Nothing is cached between calls, so files can be processed concurrently by
// the caller without coordination.
//
// Precondition: the table and the metadata must list columns in the order the
// export declared them. Placeholder/option linking is positional and is
// meaningless on a reordered table; Processor.Process rejects such input with
// ErrColumnOrder.
package survey

import (
	"math"
	"time"
)

// SourceFile identifies one decoded table. Modified is the replication
// cursor stamped onto every record derived from the file.
type SourceFile struct {
	LocalPath string
	Name      string
	Modified  time.Time
}

// ValueLabel is one entry of a value-label dictionary: a coded stored value
// and its display label.
type ValueLabel struct {
	Value any
	Label string
}

// ColumnMeta is the decoder's metadata for a single column.
type ColumnMeta struct {
	Name string

	// Label is the declared variable label, if any.
	Label *string

	// PhysicalType is the export format code, e.g. "F8.2" or "A40".
	// It determines the semantic answer type.
	PhysicalType string

	// StorageType is the decoder's storage kind (e.g. "double", "string").
	StorageType string

	// Measure is the measurement kind (nominal, ordinal, scale), if any.
	Measure *string

	// ValueLabels is the ordered value-label dictionary. Nil or empty when the
	// column has none.
	ValueLabels []ValueLabel
}

// Metadata is the ordered per-column metadata descriptor.
type Metadata struct {
	Columns []ColumnMeta

	index map[string]int
}

// NewMetadata builds a Metadata from columns in declared order.
func NewMetadata(cols []ColumnMeta) *Metadata {
	m := &Metadata{Columns: cols}
	m.reindex()
	return m
}

func (m *Metadata) reindex() {
	m.index = make(map[string]int, len(m.Columns))
	for i, c := range m.Columns {
		if _, dup := m.index[c.Name]; !dup {
			m.index[c.Name] = i
		}
	}
}

// Lookup returns the metadata for a column name.
func (m *Metadata) Lookup(name string) (ColumnMeta, bool) {
	if m == nil {
		return ColumnMeta{}, false
	}
	if m.index == nil {
		// Built as a literal; scan instead of mutating shared state.
		for _, c := range m.Columns {
			if c.Name == name {
				return c, true
			}
		}
		return ColumnMeta{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return ColumnMeta{}, false
	}
	return m.Columns[i], true
}

// Names returns the column names in declared order.
func (m *Metadata) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Name
	}
	return out
}

// Table is a decoded table: named columns in declared order and one row per
// respondent. A nil cell (or a NaN float) is a missing value.
type Table struct {
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// IsMissing reports whether a cell value counts as missing.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

// columnAllMissing reports whether every row has a missing value at idx.
// A table with zero rows counts as all missing.
func columnAllMissing(t *Table, idx int) bool {
	for _, row := range t.Rows {
		if idx < len(row) && !IsMissing(row[idx]) {
			return false
		}
	}
	return true
}
