package survey

import (
	"fmt"
	"strings"
)

// Logger is the minimal logging interface used by this package.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// QuestionOptions controls placeholder detection.
type QuestionOptions struct {
	// Marker is the name substring of a placeholder column.
	// Empty means DefaultPlaceholderMarker.
	Marker string

	// AllNullIsPlaceholder also treats a column with no answer data in any row
	// as a placeholder, even without the marker in its name.
	AllNullIsPlaceholder bool

	// Logger receives a warning for every column that is a placeholder only
	// because it is empty. Optional.
	Logger Logger
}

// DefaultQuestionOptions matches the export convention: marker "_question"
// and empty columns treated as placeholders.
func DefaultQuestionOptions() QuestionOptions {
	return QuestionOptions{Marker: DefaultPlaceholderMarker, AllNullIsPlaceholder: true}
}

func (o QuestionOptions) marker() string {
	if o.Marker == "" {
		return DefaultPlaceholderMarker
	}
	return o.Marker
}

// placeholderPredicate returns the placeholder test for t's columns together
// with the set of columns that qualified only by being empty.
func (o QuestionOptions) placeholderPredicate(t *Table) (func(string) bool, map[string]bool) {
	marker := o.marker()
	byData := make(map[string]bool)
	if o.AllNullIsPlaceholder {
		for i, c := range t.Columns {
			if !strings.Contains(c, marker) && columnAllMissing(t, i) {
				byData[c] = true
			}
		}
	}
	return func(c string) bool {
		return strings.Contains(c, marker) || byData[c]
	}, byData
}

// ClassifyQuestions builds one QuestionRecord per non-root column, in declared
// order, with placeholder flags and parent links filled in.
func ClassifyQuestions(t *Table, meta *Metadata, roots RootColumns, src SourceFile, opts QuestionOptions) ([]QuestionRecord, error) {
	if err := roots.Validate(t); err != nil {
		return nil, err
	}

	columns := roots.QuestionColumns(t)
	isPlaceholder, byData := opts.placeholderPredicate(t)
	links := LinkOptions(columns, isPlaceholder, opts.marker())

	out := make([]QuestionRecord, 0, len(columns))
	for _, c := range columns {
		cm, ok := meta.Lookup(c)
		if !ok {
			return nil, fmt.Errorf("survey: questions: %w: %q", ErrMissingMetadata, c)
		}

		q := QuestionRecord{
			QuestionID:    c,
			QuestionText:  cm.Label,
			Measure:       cm.Measure,
			DataType:      cm.StorageType,
			OriginalType:  cm.PhysicalType,
			IsPlaceholder: isPlaceholder(c),
			ValueLabels:   cm.ValueLabels,
			SourceFile:    src.Name,
			FileModified:  src.Modified,
		}
		if link, ok := links[c]; ok {
			q.ParentQuestionID = strPtr(link.ParentQuestion)
			q.CoreQuestion = strPtr(link.CoreQuestion)
			q.Option = strPtr(link.Option)
		}
		if byData[c] && opts.Logger != nil {
			opts.Logger.Printf("survey: column=%s file=%s placeholder=true reason=all_values_missing", c, src.Name)
		}
		out = append(out, q)
	}
	return out, nil
}
