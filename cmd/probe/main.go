// Command probe decodes a single survey export and reports how its columns
// would be classified: answer type, placeholder status, option linkage and
// value-label counts. Nothing is written to storage.
//
// Output is a table by default, or JSON with --format json:
//
//	probe --file wave1.csv
//	probe --file wave1.json --decoder json --format json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/pflag"

	"surveyetl/internal/config"
	"surveyetl/internal/decode"
	"surveyetl/internal/survey"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// questionRow is one line of the report.
type questionRow struct {
	Question     string  `json:"question_id"`
	Label        *string `json:"question_text"`
	Type         string  `json:"q_datatype"`
	OriginalType string  `json:"original_type"`
	Placeholder  bool    `json:"is_question_placeholder"`
	Parent       *string `json:"parent_question_id"`
	Core         *string `json:"core_question"`
	Option       *string `json:"option"`
	Options      int     `json:"options"`
}

type report struct {
	File      string         `json:"file"`
	Counts    map[string]int `json:"counts"`
	Questions []questionRow  `json:"questions"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// warnings collects placeholder warnings from the processor.
type warnings []string

func (w *warnings) Printf(format string, v ...any) { *w = append(*w, fmt.Sprintf(format, v...)) }

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: probe --file path/to/export.csv [flags]")
		fs.PrintDefaults()
	}

	file := fs.String("file", "", "survey export to probe")
	decoderKind := fs.String("decoder", "", "decoder: csv|json (default from file extension)")
	format := fs.String("format", "table", "output format: table|json")
	roots := fs.StringSlice("roots", nil, "root columns (default: the standard nine)")
	identifier := fs.String("identifier", survey.DefaultIdentifier, "respondent identifier column")
	encoding := fs.String("encoding", "", "CSV text encoding, e.g. windows-1252")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(stderr, "missing --file")
		fs.Usage()
		return 2
	}
	if *format != "table" && *format != "json" {
		fmt.Fprintf(stderr, "unsupported --format %q (want table|json)\n", *format)
		return 2
	}

	kind := *decoderKind
	if kind == "" {
		kind = config.DecoderCSV
		if strings.EqualFold(filepath.Ext(*file), ".json") {
			kind = config.DecoderJSON
		}
	}
	dec, err := decode.New(kind, config.Options{"encoding": *encoding})
	if err != nil {
		fmt.Fprintf(stderr, "decoder: %v\n", err)
		return 2
	}

	var warned warnings
	s := config.Survey{
		RootColumns:          *roots,
		Identifier:           *identifier,
		AllNullIsPlaceholder: true,
	}
	proc, err := s.Processor(&warned)
	if err != nil {
		fmt.Fprintf(stderr, "roots: %v\n", err)
		return 2
	}

	tab, meta, err := dec.Decode(ctx, *file)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}
	src := survey.SourceFile{LocalPath: *file, Name: *file}
	if info, err := os.Stat(*file); err == nil {
		src.Modified = info.ModTime().UTC()
	}
	res, err := proc.Process(tab, meta, src)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}

	rep := buildReport(*file, res, warned)
	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "probe: %v\n", err)
			return 1
		}
		return 0
	}
	renderTable(stdout, rep)
	return 0
}

func buildReport(file string, res *survey.Result, warned []string) report {
	opts := map[string]int{}
	for o := range res.Options() {
		opts[o.QuestionID]++
	}
	rep := report{File: file, Counts: res.Counts(), Warnings: warned}
	for q := range res.Questions() {
		rep.Questions = append(rep.Questions, questionRow{
			Question:     q.QuestionID,
			Label:        q.QuestionText,
			Type:         q.DataType,
			OriginalType: q.OriginalType,
			Placeholder:  q.IsPlaceholder,
			Parent:       q.ParentQuestionID,
			Core:         q.CoreQuestion,
			Option:       q.Option,
			Options:      opts[q.QuestionID],
		})
	}
	return rep
}

func renderTable(w io.Writer, rep report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"question", "type", "format", "placeholder", "parent", "core", "option", "options"})
	for _, q := range rep.Questions {
		placeholder := ""
		if q.Placeholder {
			placeholder = "yes"
		}
		t.AppendRow(table.Row{
			q.Question, q.Type, q.OriginalType, placeholder,
			orDash(q.Parent), orDash(q.Core), orDash(q.Option), q.Options,
		})
	}
	t.Render()

	fmt.Fprintf(w, "interviews=%d answers=%d questions=%d options=%d\n",
		rep.Counts[survey.StreamInterview], rep.Counts[survey.StreamAnswer],
		rep.Counts[survey.StreamQuestion], rep.Counts[survey.StreamOption])
	for _, msg := range rep.Warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
