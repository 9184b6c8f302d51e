package survey

import "strings"

// AnswerType is the semantic type of an answer, derived from the physical
// type code of its question.
type AnswerType string

const (
	AnswerNumber AnswerType = "number"
	AnswerString AnswerType = "string"
)

// ClassifyType maps a physical type code to an answer type: codes starting
// with "F" are numbers, codes starting with "A" are strings. Anything else,
// including an empty code, fails with ErrUnknownDatatype.
func ClassifyType(code string) (AnswerType, error) {
	return classifyColumn("", code)
}

func classifyColumn(column, code string) (AnswerType, error) {
	switch {
	case strings.HasPrefix(code, "F"):
		return AnswerNumber, nil
	case strings.HasPrefix(code, "A"):
		return AnswerString, nil
	}
	return "", &DatatypeError{Column: column, Code: code}
}
