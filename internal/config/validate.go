package config

import (
	"fmt"
	"path"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline checks p and returns all findings. An empty result means
// the configuration is runnable.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	errf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		warnf("job", "empty job name; metrics will be tagged job:surveyetl")
	}

	switch p.Source.Kind {
	case SourceLocal:
		if strings.TrimSpace(p.Source.Local.Dir) == "" {
			errf("source.local.dir", "required for source.kind=local")
		}
		checkPattern(p.Source.Local.Pattern, "source.local.pattern", errf)
	case SourceGCS:
		if strings.TrimSpace(p.Source.GCS.Bucket) == "" {
			errf("source.gcs.bucket", "required for source.kind=gcs")
		}
	default:
		errf("source.kind", "unsupported %q (want local|gcs)", p.Source.Kind)
	}

	switch p.Decoder.Kind {
	case DecoderCSV, DecoderJSON:
	default:
		errf("decoder.kind", "unsupported %q (want csv|json)", p.Decoder.Kind)
	}

	if _, err := p.Survey.Roots(); err != nil {
		errf("survey.root_columns", "%v", err)
	}
	if p.Survey.PlaceholderMarker == "" {
		warnf("survey.placeholder_marker", "empty; the default %q applies", "_question")
	}

	if p.Storage.Enabled() {
		switch p.Storage.Kind {
		case "sqlite", "postgres", "mssql":
		default:
			errf("storage.kind", "unsupported %q (want sqlite|postgres|mssql)", p.Storage.Kind)
		}
		if strings.TrimSpace(p.Storage.DSN) == "" {
			errf("storage.dsn", "required when storage.kind is set")
		}
	}
	if !p.Storage.Enabled() && !p.Singer.Enabled {
		errf("storage", "no sink configured; set storage.kind or singer.enabled")
	}

	if p.Runtime.FileWorkers < 1 {
		errf("runtime.file_workers", "must be >= 1, got %d", p.Runtime.FileWorkers)
	}
	if p.Runtime.BatchSize < 1 {
		errf("runtime.batch_size", "must be >= 1, got %d", p.Runtime.BatchSize)
	}
	switch p.Runtime.OnFileError {
	case OnFileErrorFail, OnFileErrorSkip:
	default:
		errf("runtime.on_file_error", "unsupported %q (want fail|skip)", p.Runtime.OnFileError)
	}

	if p.State.Path == "" && p.Source.Kind == SourceGCS {
		warnf("state.path", "no bookmark file; every run reprocesses all objects")
	}
	return out
}

func checkPattern(pattern, key string, errf func(path, format string, a ...any)) {
	if pattern == "" {
		return
	}
	if _, err := path.Match(pattern, ""); err != nil {
		errf(key, "invalid pattern %q: %v", pattern, err)
	}
}
