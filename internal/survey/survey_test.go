package survey

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testModified = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func testSource() SourceFile {
	return SourceFile{LocalPath: "/tmp/wave1.sav", Name: "gs://bucket/wave1.sav", Modified: testModified}
}

func rootRow(id float64) []any {
	return []any{id, "tan", "tid", "2024-01-01 10:00", "2024-01-01 10:20", 1200.0, 5.0, "complete", "Q9"}
}

func rootMeta() []ColumnMeta {
	out := make([]ColumnMeta, 0, len(defaultRootNames))
	for _, n := range defaultRootNames {
		out = append(out, ColumnMeta{Name: n, PhysicalType: "A40", StorageType: "string"})
	}
	return out
}

// fixture builds a table with the nine root columns followed by questions.
func fixture(questions []ColumnMeta, answers ...[]any) (*Table, *Metadata) {
	cols := slices.Clone(defaultRootNames)
	for _, q := range questions {
		cols = append(cols, q.Name)
	}
	t := &Table{Columns: cols}
	for i, a := range answers {
		row := append(rootRow(float64(i+1)), a...)
		t.Rows = append(t.Rows, row)
	}
	return t, NewMetadata(append(rootMeta(), questions...))
}

func label(s string) *string { return &s }

func TestClassifyType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code    string
		want    AnswerType
		wantErr bool
	}{
		{code: "F8.2", want: AnswerNumber},
		{code: "F1", want: AnswerNumber},
		{code: "A20", want: AnswerString},
		{code: "A40", want: AnswerString},
		{code: "D8", wantErr: true},
		{code: "DATETIME20", wantErr: true},
		{code: "", wantErr: true},
		{code: "f8.2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ClassifyType(tt.code)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownDatatype)
				var de *DatatypeError
				assert.True(t, errors.As(err, &de))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeltAnswers_RoutesByType(t *testing.T) {
	t.Parallel()

	tab, meta := fixture(
		[]ColumnMeta{
			{Name: "Q1", PhysicalType: "F8.2", StorageType: "double"},
			{Name: "Q2", PhysicalType: "A20", StorageType: "string"},
		},
		[]any{3.0, "yes"},
		[]any{nil, ""},
		[]any{math.NaN(), "no"},
	)

	got, err := MeltAnswers(tab, meta, DefaultRootColumns(), testSource())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1.0, got[0].RespondentID)
	assert.Equal(t, "Q1", got[0].QuestionID)
	require.NotNil(t, got[0].AnswerNumber)
	assert.Equal(t, 3.0, *got[0].AnswerNumber)
	assert.Nil(t, got[0].AnswerText)

	assert.Equal(t, "Q2", got[1].QuestionID)
	require.NotNil(t, got[1].AnswerText)
	assert.Equal(t, "yes", *got[1].AnswerText)
	assert.Nil(t, got[1].AnswerNumber)

	assert.Equal(t, 3.0, got[2].RespondentID)
	assert.Equal(t, "no", *got[2].AnswerText)

	for _, a := range got {
		assert.Equal(t, "gs://bucket/wave1.sav", a.SourceFile)
		assert.Equal(t, testModified, a.FileModified)
		assert.True(t, (a.AnswerText == nil) != (a.AnswerNumber == nil), "exactly one answer field must be set")
		if a.AnswerText != nil {
			assert.NotEmpty(t, *a.AnswerText)
		}
	}
}

func TestMeltAnswers_NumericStrings(t *testing.T) {
	t.Parallel()

	tab, meta := fixture(
		[]ColumnMeta{{Name: "Q1", PhysicalType: "F3"}},
		[]any{" 42 "},
		[]any{"  "},
	)
	got, err := MeltAnswers(tab, meta, DefaultRootColumns(), testSource())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.0, *got[0].AnswerNumber)

	tab.Rows[1][len(tab.Columns)-1] = "abc"
	_, err = MeltAnswers(tab, meta, DefaultRootColumns(), testSource())
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func TestMeltAnswers_UnknownDatatypeAbortsFile(t *testing.T) {
	t.Parallel()

	tab, meta := fixture(
		[]ColumnMeta{
			{Name: "Q1", PhysicalType: "F8.2"},
			{Name: "Q2", PhysicalType: "D8"},
		},
		[]any{1.0, nil},
	)
	got, err := MeltAnswers(tab, meta, DefaultRootColumns(), testSource())
	assert.Nil(t, got)
	require.ErrorIs(t, err, ErrUnknownDatatype)

	var de *DatatypeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Q2", de.Column)
	assert.Equal(t, "D8", de.Code)
}

func TestExtractInterviews(t *testing.T) {
	t.Parallel()

	tab, _ := fixture([]ColumnMeta{{Name: "Q1", PhysicalType: "F1"}}, []any{1.0}, []any{2.0})
	got, err := ExtractInterviews(tab, DefaultRootColumns(), testSource())
	require.NoError(t, err)
	require.Len(t, got, len(tab.Rows))
	assert.Equal(t, rootRow(2), got[1].Values)
	assert.Equal(t, "gs://bucket/wave1.sav", got[1].SourceFile)
	assert.Equal(t, testModified, got[1].FileModified)
}

func TestExtractInterviews_MissingRootColumn(t *testing.T) {
	t.Parallel()

	tab := &Table{Columns: []string{"i_NUMBER", "i_TAN"}, Rows: [][]any{{1.0, "x"}}}
	_, err := ExtractInterviews(tab, DefaultRootColumns(), testSource())
	require.ErrorIs(t, err, ErrMissingRootColumn)
	assert.Contains(t, err.Error(), "i_TID")
}

func TestLinkOptions_ContiguityBounded(t *testing.T) {
	t.Parallel()

	cols := []string{"A_question", "A_opt1", "A_opt2", "B_question", "B_opt1"}
	isPH := func(c string) bool { return c == "A_question" || c == "B_question" }

	got := LinkOptions(cols, isPH, "_question")
	assert.Equal(t, map[string]OptionLink{
		"A_opt1": {ParentQuestion: "A_question", CoreQuestion: "A", Option: "_opt1"},
		"A_opt2": {ParentQuestion: "A_question", CoreQuestion: "A", Option: "_opt2"},
		"B_opt1": {ParentQuestion: "B_question", CoreQuestion: "B", Option: "_opt1"},
	}, got)
}

func TestLinkOptions_StopsAtFirstNonMatching(t *testing.T) {
	t.Parallel()

	cols := []string{"Q5_question", "Q5_1", "Q6", "Q5_2"}
	got := LinkOptions(cols, func(c string) bool { return c == "Q5_question" }, "_question")

	require.Len(t, got, 1)
	assert.Equal(t, "_1", got["Q5_1"].Option)
	_, linked := got["Q5_2"]
	assert.False(t, linked, "columns after a boundary are never linked")
}

func TestLinkOptions_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cols []string
		ph   []string
		want int
	}{
		{name: "trailing_placeholder", cols: []string{"Q1", "Q2_question"}, ph: []string{"Q2_question"}, want: 0},
		{name: "adjacent_placeholders", cols: []string{"Q2_question", "Q2_question_b"}, ph: []string{"Q2_question", "Q2_question_b"}, want: 0},
		{name: "empty_core", cols: []string{"_question", "x", "y"}, ph: []string{"_question"}, want: 2},
		{name: "no_placeholders", cols: []string{"a", "ab", "abc"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LinkOptions(tt.cols, func(c string) bool { return slices.Contains(tt.ph, c) }, "_question")
			assert.Len(t, got, tt.want)
		})
	}
}

func TestLinkOptions_EmptyCoreStopsAtNextPlaceholder(t *testing.T) {
	t.Parallel()

	cols := []string{"_question", "x", "y", "Z_question", "Z1"}
	ph := []string{"_question", "Z_question"}
	got := LinkOptions(cols, func(c string) bool { return slices.Contains(ph, c) }, "_question")

	require.Len(t, got, 3)
	assert.Equal(t, OptionLink{ParentQuestion: "_question", CoreQuestion: "", Option: "x"}, got["x"])
	assert.Equal(t, OptionLink{ParentQuestion: "_question", CoreQuestion: "", Option: "y"}, got["y"])
	assert.Equal(t, "Z_question", got["Z1"].ParentQuestion)
	_, linked := got["Z_question"]
	assert.False(t, linked)
}

func TestClassifyQuestions(t *testing.T) {
	t.Parallel()

	questions := []ColumnMeta{
		{Name: "Q3_question", Label: label("Which brands?"), PhysicalType: "F1", StorageType: "double", Measure: label("nominal")},
		{Name: "Q3_1", Label: label("Brand one"), PhysicalType: "F1", StorageType: "double",
			ValueLabels: []ValueLabel{{Value: 0.0, Label: "not selected"}, {Value: 1.0, Label: "selected"}}},
		{Name: "Q3_2", PhysicalType: "F1", StorageType: "double"},
		{Name: "Q4", Label: label("Comment"), PhysicalType: "A200", StorageType: "string"},
		{Name: "Q5", PhysicalType: "F1", StorageType: "double"},
	}
	tab, meta := fixture(questions,
		[]any{nil, 1.0, 0.0, "fine", nil},
		[]any{nil, 0.0, 1.0, "", nil},
	)

	got, err := ClassifyQuestions(tab, meta, DefaultRootColumns(), testSource(), DefaultQuestionOptions())
	require.NoError(t, err)
	require.Len(t, got, 5)

	ids := make([]string, len(got))
	for i, q := range got {
		ids[i] = q.QuestionID
	}
	assert.Equal(t, []string{"Q3_question", "Q3_1", "Q3_2", "Q4", "Q5"}, ids)

	ph := got[0]
	assert.True(t, ph.IsPlaceholder)
	assert.Nil(t, ph.ParentQuestionID)
	assert.Equal(t, "Which brands?", *ph.QuestionText)
	assert.Equal(t, "nominal", *ph.Measure)
	assert.Equal(t, "double", ph.DataType)
	assert.Equal(t, "F1", ph.OriginalType)

	opt := got[1]
	assert.False(t, opt.IsPlaceholder)
	require.NotNil(t, opt.ParentQuestionID)
	assert.Equal(t, "Q3_question", *opt.ParentQuestionID)
	assert.Equal(t, "Q3", *opt.CoreQuestion)
	assert.Equal(t, "_1", *opt.Option)
	assert.Len(t, opt.ValueLabels, 2)

	assert.Equal(t, "_2", *got[2].Option)

	assert.False(t, got[3].IsPlaceholder)
	assert.Nil(t, got[3].ParentQuestionID)
	assert.Nil(t, got[3].CoreQuestion)
	assert.Nil(t, got[3].Option)

	// Q5 has no data in any row: a placeholder without the marker.
	assert.True(t, got[4].IsPlaceholder)
	assert.Nil(t, got[4].ParentQuestionID)
}

func TestClassifyQuestions_AllNullSwitch(t *testing.T) {
	t.Parallel()

	tab, meta := fixture([]ColumnMeta{{Name: "Q7", PhysicalType: "F1"}}, []any{nil})

	var logs recordingLogger
	on := QuestionOptions{AllNullIsPlaceholder: true, Logger: &logs}
	got, err := ClassifyQuestions(tab, meta, DefaultRootColumns(), testSource(), on)
	require.NoError(t, err)
	assert.True(t, got[0].IsPlaceholder)
	require.Len(t, logs.msgs, 1)
	assert.Contains(t, logs.msgs[0], "column=Q7")

	off := QuestionOptions{AllNullIsPlaceholder: false}
	got, err = ClassifyQuestions(tab, meta, DefaultRootColumns(), testSource(), off)
	require.NoError(t, err)
	assert.False(t, got[0].IsPlaceholder)
}

func TestEmitOptions(t *testing.T) {
	t.Parallel()

	qs := []QuestionRecord{
		{QuestionID: "Q1", SourceFile: "f", FileModified: testModified,
			ValueLabels: []ValueLabel{{Value: 1.0, Label: "Yes"}, {Value: 2.0, Label: "No"}}},
		{QuestionID: "Q2", SourceFile: "f"},
		{QuestionID: "Q3", SourceFile: "f", ValueLabels: []ValueLabel{}},
	}
	got := EmitOptions(qs)
	assert.Equal(t, []OptionRecord{
		{QuestionID: "Q1", OptionID: "1", OptionLabel: "Yes", SourceFile: "f", FileModified: testModified},
		{QuestionID: "Q1", OptionID: "2", OptionLabel: "No", SourceFile: "f", FileModified: testModified},
	}, got)
}

func TestFormatCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{1.0, "1"},
		{-3.0, "-3"},
		{1.5, "1.5"},
		{" a ", "a"},
		{int64(7), "7"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCode(tt.in), "FormatCode(%v)", tt.in)
	}
}

type recordingLogger struct{ msgs []string }

func (l *recordingLogger) Printf(format string, v ...any) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}
