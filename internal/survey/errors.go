package survey

import (
	"errors"
	"fmt"
)

// File-scoped errors. Any of them aborts processing of the current file; no
// records are emitted for it.
var (
	// ErrUnreadableSource is wrapped by decoders when a file cannot be parsed.
	ErrUnreadableSource = errors.New("unreadable source")

	// ErrUnknownDatatype means a question's physical type code has no known
	// prefix. It signals unexpected export settings and is never coerced.
	ErrUnknownDatatype = errors.New("unknown datatype")

	// ErrMissingRootColumn means an administrative column is absent.
	ErrMissingRootColumn = errors.New("missing root column")

	// ErrMissingMetadata means a question column has no metadata entry.
	ErrMissingMetadata = errors.New("missing column metadata")

	// ErrColumnOrder means the metadata does not list columns in table order.
	ErrColumnOrder = errors.New("column order mismatch")

	// ErrRaggedRow means a row does not have one cell per column.
	ErrRaggedRow = errors.New("ragged row")

	// ErrInvalidNumber means a number-typed cell holds non-numeric text.
	ErrInvalidNumber = errors.New("invalid number")
)

// DatatypeError describes a physical type code that could not be classified.
type DatatypeError struct {
	Column string
	Code   string
}

func (e *DatatypeError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("survey: column %q: %v: no physical type code", e.Column, ErrUnknownDatatype)
	}
	return fmt.Sprintf("survey: column %q: %v %q", e.Column, ErrUnknownDatatype, e.Code)
}

// Is makes errors.Is(err, ErrUnknownDatatype) match.
func (e *DatatypeError) Is(target error) bool { return target == ErrUnknownDatatype }
