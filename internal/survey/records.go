package survey

import "time"

// InterviewRecord is one respondent's administrative fields.
//
// Values is aligned with RootColumns.Names(); cells are passed through from
// the table without coercion.
type InterviewRecord struct {
	Values       []any
	SourceFile   string
	FileModified time.Time
}

// AnswerRecord is one respondent's answer to one question. Exactly one of
// AnswerText and AnswerNumber is non-nil.
type AnswerRecord struct {
	RespondentID any
	QuestionID   string
	AnswerText   *string
	AnswerNumber *float64
	SourceFile   string
	FileModified time.Time
}

// QuestionRecord describes one non-root column.
//
// ParentQuestionID, CoreQuestion and Option are set together, only when the
// column was linked as an option of a placeholder question. A placeholder
// question never has a parent.
type QuestionRecord struct {
	QuestionID       string
	QuestionText     *string
	Measure          *string
	DataType         string
	OriginalType     string
	IsPlaceholder    bool
	ParentQuestionID *string
	CoreQuestion     *string
	Option           *string
	SourceFile       string
	FileModified     time.Time

	// ValueLabels feeds the option emitter; it is not a stored column.
	ValueLabels []ValueLabel
}

// OptionRecord is one coded option of a question.
type OptionRecord struct {
	QuestionID   string
	OptionID     string
	OptionLabel  string
	SourceFile   string
	FileModified time.Time
}

func strPtr(s string) *string { return &s }
