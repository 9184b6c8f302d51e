package storage

import (
	"fmt"
	"strings"
)

// SourceFileColumn identifies the file a row came from. Every table carries it
// and ReplaceFile deletes by it.
const SourceFileColumn = "source_file"

// Logical column types. Backends map them to native SQL types.
const (
	TypeText      = "text"
	TypeDouble    = "double"
	TypeBool      = "bool"
	TypeTimestamp = "timestamp"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name            string       `json:"name"`
	AutoCreateTable bool         `json:"auto_create_table"`
	Columns         []ColumnSpec `json:"columns"`
	PrimaryKey      []string     `json:"primary_key,omitempty"`
}

// ColumnSpec describes one column. Nullable defaults to true.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

// IsNullable reports the effective nullability.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// ColumnNames returns the column names in declared order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks the spec for problems every backend would reject.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	hasSource := false
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("storage: table %s: column with empty name", t.Name)
		}
		if seen[name] {
			return fmt.Errorf("storage: table %s: duplicate column %q", t.Name, name)
		}
		seen[name] = true
		switch c.Type {
		case TypeText, TypeDouble, TypeBool, TypeTimestamp:
		default:
			return fmt.Errorf("storage: table %s: column %s: unsupported type %q", t.Name, name, c.Type)
		}
		if name == SourceFileColumn {
			hasSource = true
		}
	}
	if !hasSource {
		return fmt.Errorf("storage: table %s: missing %s column", t.Name, SourceFileColumn)
	}
	for _, k := range t.PrimaryKey {
		if !seen[k] {
			return fmt.Errorf("storage: table %s: primary key column %q not declared", t.Name, k)
		}
	}
	return nil
}

// SplitQualifiedName splits "schema.table" into its parts. Names without
// exactly one dot are returned unqualified.
func SplitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
