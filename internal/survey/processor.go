package survey

import (
	"fmt"
	"iter"
	"slices"
)

// Stream names of the four record streams.
const (
	StreamInterview = "interview"
	StreamAnswer    = "interview_answer"
	StreamQuestion  = "question"
	StreamOption    = "question_option"
)

// Processor runs all four components over one decoded file.
// A Processor holds configuration only and is safe for concurrent use.
type Processor struct {
	Roots     RootColumns
	Questions QuestionOptions
}

// NewProcessor returns a Processor for the default export layout.
func NewProcessor() *Processor {
	return &Processor{
		Roots:     DefaultRootColumns(),
		Questions: DefaultQuestionOptions(),
	}
}

// Result holds every record derived from one file.
type Result struct {
	Source     SourceFile
	Roots      RootColumns
	interviews []InterviewRecord
	answers    []AnswerRecord
	questions  []QuestionRecord
	options    []OptionRecord
}

// Process validates the input and derives all four record streams. On any
// error it returns no records at all.
func (p *Processor) Process(t *Table, meta *Metadata, src SourceFile) (*Result, error) {
	if t == nil || meta == nil {
		return nil, fmt.Errorf("survey: process %s: nil table or metadata", src.Name)
	}
	if err := p.checkInput(t, meta); err != nil {
		return nil, fmt.Errorf("survey: process %s: %w", src.Name, err)
	}

	interviews, err := ExtractInterviews(t, p.Roots, src)
	if err != nil {
		return nil, fmt.Errorf("survey: process %s: %w", src.Name, err)
	}
	answers, err := MeltAnswers(t, meta, p.Roots, src)
	if err != nil {
		return nil, fmt.Errorf("survey: process %s: %w", src.Name, err)
	}
	questions, err := ClassifyQuestions(t, meta, p.Roots, src, p.Questions)
	if err != nil {
		return nil, fmt.Errorf("survey: process %s: %w", src.Name, err)
	}

	return &Result{
		Source:     src,
		Roots:      p.Roots,
		interviews: interviews,
		answers:    answers,
		questions:  questions,
		options:    EmitOptions(questions),
	}, nil
}

// checkInput enforces the structural preconditions: root columns present,
// rectangular rows, metadata for every question column, and metadata listed
// in table order.
func (p *Processor) checkInput(t *Table, meta *Metadata) error {
	if err := p.Roots.Validate(t); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedRow, i+1, len(row), len(t.Columns))
		}
	}

	pos := make(map[string]int, len(meta.Columns))
	for i, c := range meta.Columns {
		pos[c.Name] = i
	}
	last := -1
	for _, c := range t.Columns {
		i, ok := pos[c]
		if !ok {
			if p.Roots.Contains(c) {
				continue
			}
			return fmt.Errorf("%w: %q", ErrMissingMetadata, c)
		}
		if i < last {
			return fmt.Errorf("%w: %q is declared before its predecessor", ErrColumnOrder, c)
		}
		last = i
	}
	return nil
}

// Interviews returns the interview records.
func (r *Result) Interviews() iter.Seq[InterviewRecord] { return slices.Values(r.interviews) }

// Answers returns the answer records.
func (r *Result) Answers() iter.Seq[AnswerRecord] { return slices.Values(r.answers) }

// Questions returns the question records in declared column order.
func (r *Result) Questions() iter.Seq[QuestionRecord] { return slices.Values(r.questions) }

// Options returns the option records.
func (r *Result) Options() iter.Seq[OptionRecord] { return slices.Values(r.options) }

// InterviewList returns a copy of the interview records.
func (r *Result) InterviewList() []InterviewRecord { return slices.Clone(r.interviews) }

// AnswerList returns a copy of the answer records.
func (r *Result) AnswerList() []AnswerRecord { return slices.Clone(r.answers) }

// QuestionList returns a copy of the question records.
func (r *Result) QuestionList() []QuestionRecord { return slices.Clone(r.questions) }

// OptionList returns a copy of the option records.
func (r *Result) OptionList() []OptionRecord { return slices.Clone(r.options) }

// Counts returns the number of records per stream.
func (r *Result) Counts() map[string]int {
	return map[string]int{
		StreamInterview: len(r.interviews),
		StreamAnswer:    len(r.answers),
		StreamQuestion:  len(r.questions),
		StreamOption:    len(r.options),
	}
}
