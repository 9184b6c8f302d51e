// Package config defines the pipeline configuration and loads it from
// defaults, a YAML/JSON file, SURVEYETL_* environment variables and CLI flags.
package config

import (
	"fmt"

	"surveyetl/internal/survey"
)

// Source kinds.
const (
	SourceLocal = "local"
	SourceGCS   = "gcs"
)

// Decoder kinds.
const (
	DecoderCSV  = "csv"
	DecoderJSON = "json"
)

// File error policies.
const (
	OnFileErrorFail = "fail"
	OnFileErrorSkip = "skip"
)

// Pipeline is the full configuration of one run.
type Pipeline struct {
	Job     string  `koanf:"job"`
	Source  Source  `koanf:"source"`
	Decoder Decoder `koanf:"decoder"`
	Survey  Survey  `koanf:"survey"`
	Storage Storage `koanf:"storage"`
	Singer  Singer  `koanf:"singer"`
	State   State   `koanf:"state"`
	Runtime Runtime `koanf:"runtime"`
}

// Source selects where survey files are acquired.
type Source struct {
	Kind  string `koanf:"kind"`
	Local Local  `koanf:"local"`
	GCS   GCS    `koanf:"gcs"`
}

// Local lists files from a directory.
type Local struct {
	Dir     string `koanf:"dir"`
	Pattern string `koanf:"pattern"`
}

// GCS lists and downloads objects from a Cloud Storage bucket.
type GCS struct {
	Project      string `koanf:"project"`
	Bucket       string `koanf:"bucket"`
	Prefix       string `koanf:"prefix"`
	Pattern      string `koanf:"pattern"`
	Credentials  string `koanf:"credentials"`
	TargetDir    string `koanf:"target_dir"`
	SkipIfExists bool   `koanf:"skip_if_exists"`
}

// Decoder selects the file decoder and its options.
type Decoder struct {
	Kind    string  `koanf:"kind"`
	Options Options `koanf:"options"`
}

// Survey configures the record derivation.
type Survey struct {
	RootColumns          []string `koanf:"root_columns"`
	Identifier           string   `koanf:"identifier"`
	PlaceholderMarker    string   `koanf:"placeholder_marker"`
	AllNullIsPlaceholder bool     `koanf:"all_null_is_placeholder"`
}

// Storage is the optional database sink. An empty Kind disables it.
type Storage struct {
	Kind            string `koanf:"kind"`
	DSN             string `koanf:"dsn"`
	TablePrefix     string `koanf:"table_prefix"`
	AutoCreateTable bool   `koanf:"auto_create_table"`
}

// Enabled reports whether a storage sink is configured.
func (s Storage) Enabled() bool { return s.Kind != "" }

// Singer is the optional JSON-lines message sink.
type Singer struct {
	Enabled bool   `koanf:"enabled"`
	Output  string `koanf:"output"`
}

// ToStdout reports whether singer messages go to standard output.
func (s Singer) ToStdout() bool { return s.Output == "" || s.Output == "-" }

// State configures incremental bookmarks.
type State struct {
	Path string `koanf:"path"`
}

// Runtime holds execution knobs.
type Runtime struct {
	FileWorkers int    `koanf:"file_workers"`
	BatchSize   int    `koanf:"batch_size"`
	OnFileError string `koanf:"on_file_error"`
}

// Defaults returns the default configuration as a flat koanf key map.
func Defaults() map[string]any {
	return map[string]any{
		"job":                            "surveyetl",
		"source.kind":                    SourceLocal,
		"source.local.pattern":           "*.sav",
		"source.gcs.pattern":             "*.sav",
		"source.gcs.skip_if_exists":      true,
		"decoder.kind":                   DecoderCSV,
		"survey.root_columns":            survey.DefaultRootColumns().Names(),
		"survey.identifier":              survey.DefaultIdentifier,
		"survey.placeholder_marker":      survey.DefaultPlaceholderMarker,
		"survey.all_null_is_placeholder": true,
		"storage.auto_create_table":      true,
		"runtime.file_workers":           1,
		"runtime.batch_size":             500,
		"runtime.on_file_error":          OnFileErrorFail,
	}
}

// Roots builds the configured root column set.
func (s Survey) Roots() (survey.RootColumns, error) {
	if len(s.RootColumns) == 0 {
		return survey.DefaultRootColumns(), nil
	}
	id := s.Identifier
	if id == "" {
		id = survey.DefaultIdentifier
	}
	r, err := survey.NewRootColumns(id, s.RootColumns...)
	if err != nil {
		return survey.RootColumns{}, fmt.Errorf("config: survey.root_columns: %w", err)
	}
	return r, nil
}

// Processor builds a survey.Processor from the configuration. logger receives
// placeholder warnings and may be nil.
func (s Survey) Processor(logger survey.Logger) (*survey.Processor, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}
	return &survey.Processor{
		Roots: roots,
		Questions: survey.QuestionOptions{
			Marker:               s.PlaceholderMarker,
			AllNullIsPlaceholder: s.AllNullIsPlaceholder,
			Logger:               logger,
		},
	}, nil
}
