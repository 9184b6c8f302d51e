package survey

import (
	"fmt"
	"strings"
)

// DefaultIdentifier is the respondent identifier column of the default export
// layout.
const DefaultIdentifier = "i_NUMBER"

var defaultRootNames = []string{
	"i_NUMBER",
	"i_TAN",
	"i_TID",
	"i_START",
	"i_END",
	"i_TIME",
	"i_STATUS",
	"i_ST_TXT",
	"current_Q",
}

// RootColumns is the ordered set of per-respondent administrative columns.
// Every table must contain all of them; every other column is a question.
type RootColumns struct {
	names      []string
	identifier string
	set        map[string]struct{}
}

// DefaultRootColumns returns the nine administrative columns of the default
// export layout, identified by i_NUMBER.
func DefaultRootColumns() RootColumns {
	r, err := NewRootColumns(DefaultIdentifier, defaultRootNames...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRootColumns builds a root-column set. The identifier must be one of the
// names; names must be non-empty and unique.
func NewRootColumns(identifier string, names ...string) (RootColumns, error) {
	if len(names) == 0 {
		return RootColumns{}, fmt.Errorf("survey: root columns: empty set")
	}
	set := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return RootColumns{}, fmt.Errorf("survey: root columns: empty column name")
		}
		if _, dup := set[n]; dup {
			return RootColumns{}, fmt.Errorf("survey: root columns: duplicate %q", n)
		}
		set[n] = struct{}{}
		out = append(out, n)
	}
	if _, ok := set[identifier]; !ok {
		return RootColumns{}, fmt.Errorf("survey: root columns: identifier %q not in set", identifier)
	}
	return RootColumns{names: out, identifier: identifier, set: set}, nil
}

// Names returns the root column names in order.
func (r RootColumns) Names() []string {
	return append([]string(nil), r.names...)
}

// Identifier returns the respondent identifier column name.
func (r RootColumns) Identifier() string { return r.identifier }

// IsZero reports whether r was never initialized.
func (r RootColumns) IsZero() bool { return len(r.names) == 0 }

// Contains reports whether name is a root column.
func (r RootColumns) Contains(name string) bool {
	_, ok := r.set[name]
	return ok
}

// Validate checks that every root column is present in t.
func (r RootColumns) Validate(t *Table) error {
	if r.IsZero() {
		return fmt.Errorf("survey: root columns not configured")
	}
	have := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = struct{}{}
	}
	for _, n := range r.names {
		if _, ok := have[n]; !ok {
			return fmt.Errorf("survey: %w: %q", ErrMissingRootColumn, n)
		}
	}
	return nil
}

// QuestionColumns returns the non-root columns of t in declared order.
func (r RootColumns) QuestionColumns(t *Table) []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !r.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}
