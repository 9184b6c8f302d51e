// Package catalog describes the four output streams: their columns, primary
// keys and replication key, and how survey records map onto rows.
package catalog

import (
	"fmt"
	"math"
	"time"

	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

// ReplicationKey is the incremental cursor shared by every stream.
const ReplicationKey = "file_modified"

// Stream is one output stream.
type Stream struct {
	Name           string
	KeyProperties  []string
	ReplicationKey string
	Table          storage.TableSpec
}

// Streams returns the interview, interview_answer, question and
// question_option streams in that order. Interview columns follow roots and
// answers are keyed by the identifier root; table names are prefix + stream
// name.
func Streams(roots survey.RootColumns, prefix string, autoCreate bool) []Stream {
	interviewCols := make([]storage.ColumnSpec, 0, len(roots.Names())+2)
	for _, n := range roots.Names() {
		interviewCols = append(interviewCols, text(n))
	}
	interviewCols = append(interviewCols, text(storage.SourceFileColumn), timestamp(ReplicationKey))

	defs := []struct {
		name string
		cols []storage.ColumnSpec
		keys []string
	}{
		{
			name: survey.StreamInterview,
			cols: interviewCols,
			keys: []string{storage.SourceFileColumn, roots.Identifier()},
		},
		{
			name: survey.StreamAnswer,
			cols: []storage.ColumnSpec{
				text(roots.Identifier()),
				text("question_id"),
				text("q_answer_text"),
				double("q_answer_number"),
				text(storage.SourceFileColumn),
				timestamp(ReplicationKey),
			},
			keys: []string{storage.SourceFileColumn, roots.Identifier(), "question_id"},
		},
		{
			name: survey.StreamQuestion,
			cols: []storage.ColumnSpec{
				text("question_id"),
				text("question_text"),
				text("measure"),
				text("q_datatype"),
				text("original_type"),
				boolean("is_question_placeholder"),
				text("parent_question_id"),
				text("core_question"),
				text("option"),
				text(storage.SourceFileColumn),
				timestamp(ReplicationKey),
			},
			keys: []string{storage.SourceFileColumn, "question_id"},
		},
		{
			name: survey.StreamOption,
			cols: []storage.ColumnSpec{
				text("question_id"),
				text("option_id"),
				text("option_label"),
				text(storage.SourceFileColumn),
				timestamp(ReplicationKey),
			},
			keys: []string{storage.SourceFileColumn, "question_id", "option_id"},
		},
	}

	out := make([]Stream, 0, len(defs))
	for _, d := range defs {
		out = append(out, Stream{
			Name:           d.name,
			KeyProperties:  d.keys,
			ReplicationKey: ReplicationKey,
			Table: storage.TableSpec{
				Name:            prefix + d.name,
				AutoCreateTable: autoCreate,
				Columns:         d.cols,
				PrimaryKey:      d.keys,
			},
		})
	}
	return out
}

// Tables returns the table specs of streams.
func Tables(streams []Stream) []storage.TableSpec {
	out := make([]storage.TableSpec, len(streams))
	for i, s := range streams {
		out[i] = s.Table
	}
	return out
}

// Names returns the stream names.
func Names(streams []Stream) []string {
	out := make([]string, len(streams))
	for i, s := range streams {
		out[i] = s.Name
	}
	return out
}

// Rows converts the records of one stream into rows aligned with the
// stream's table columns.
func Rows(s Stream, r *survey.Result) ([][]any, error) {
	var rows [][]any
	switch s.Name {
	case survey.StreamInterview:
		for rec := range r.Interviews() {
			row := make([]any, 0, len(rec.Values)+2)
			for _, v := range rec.Values {
				row = append(row, cellText(v))
			}
			rows = append(rows, append(row, rec.SourceFile, rec.FileModified))
		}
	case survey.StreamAnswer:
		for rec := range r.Answers() {
			rows = append(rows, []any{
				cellText(rec.RespondentID),
				rec.QuestionID,
				deref(rec.AnswerText),
				deref(rec.AnswerNumber),
				rec.SourceFile,
				rec.FileModified,
			})
		}
	case survey.StreamQuestion:
		for rec := range r.Questions() {
			rows = append(rows, []any{
				rec.QuestionID,
				deref(rec.QuestionText),
				deref(rec.Measure),
				rec.DataType,
				rec.OriginalType,
				rec.IsPlaceholder,
				deref(rec.ParentQuestionID),
				deref(rec.CoreQuestion),
				deref(rec.Option),
				rec.SourceFile,
				rec.FileModified,
			})
		}
	case survey.StreamOption:
		for rec := range r.Options() {
			rows = append(rows, []any{
				rec.QuestionID,
				rec.OptionID,
				rec.OptionLabel,
				rec.SourceFile,
				rec.FileModified,
			})
		}
	default:
		return nil, fmt.Errorf("catalog: unknown stream %q", s.Name)
	}
	if n := len(s.Table.Columns); len(rows) > 0 && len(rows[0]) != n {
		return nil, fmt.Errorf("catalog: stream %s: row width %d, table has %d columns", s.Name, len(rows[0]), n)
	}
	return rows, nil
}

// Records converts the records of one stream into JSON-ready maps keyed by
// column name. Timestamps are rendered as RFC3339Nano in UTC.
func Records(s Stream, r *survey.Result) ([]map[string]any, error) {
	rows, err := Rows(s, r)
	if err != nil {
		return nil, err
	}
	names := s.Table.ColumnNames()
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(names))
		for j, n := range names {
			v := row[j]
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(time.RFC3339Nano)
			}
			m[n] = v
		}
		out[i] = m
	}
	return out, nil
}

// cellText renders a passed-through cell as text; missing values become nil.
// Strings are kept verbatim.
func cellText(v any) any {
	if survey.IsMissing(v) {
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if math.IsInf(x, 0) {
			return nil
		}
	}
	return survey.FormatCode(v)
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func text(name string) storage.ColumnSpec      { return storage.ColumnSpec{Name: name, Type: storage.TypeText} }
func double(name string) storage.ColumnSpec    { return storage.ColumnSpec{Name: name, Type: storage.TypeDouble} }
func boolean(name string) storage.ColumnSpec   { return storage.ColumnSpec{Name: name, Type: storage.TypeBool} }
func timestamp(name string) storage.ColumnSpec { return storage.ColumnSpec{Name: name, Type: storage.TypeTimestamp} }
