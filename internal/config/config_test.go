package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyetl/internal/survey"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const sampleYAML = `
job: wave-import
source:
  kind: local
  local:
    dir: /data/exports
decoder:
  kind: csv
  options:
    encoding: windows-1252
    comma: ";"
storage:
  kind: sqlite
  dsn: file:${SURVEYETL_TEST_DB}?cache=shared
runtime:
  file_workers: 4
`

func TestLoad_DefaultsAndFile(t *testing.T) {
	t.Setenv("SURVEYETL_TEST_DB", "surveys.db")
	p, err := Load(writeFile(t, "pipeline.yaml", sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "wave-import", p.Job)
	assert.Equal(t, SourceLocal, p.Source.Kind)
	assert.Equal(t, "/data/exports", p.Source.Local.Dir)
	assert.Equal(t, "*.sav", p.Source.Local.Pattern)
	assert.True(t, p.Source.GCS.SkipIfExists)
	assert.Equal(t, "windows-1252", p.Decoder.Options.String("encoding", ""))
	assert.Equal(t, ';', p.Decoder.Options.Rune("comma", ','))
	assert.Equal(t, "file:surveys.db?cache=shared", p.Storage.DSN)
	assert.True(t, p.Storage.AutoCreateTable)
	assert.Equal(t, 4, p.Runtime.FileWorkers)
	assert.Equal(t, 500, p.Runtime.BatchSize)
	assert.Equal(t, OnFileErrorFail, p.Runtime.OnFileError)
	assert.Equal(t, survey.DefaultRootColumns().Names(), p.Survey.RootColumns)
	assert.True(t, p.Survey.AllNullIsPlaceholder)
	assert.Empty(t, ValidatePipeline(p))
}

func TestLoad_JSONFile(t *testing.T) {
	body := `{"job":"j","source":{"kind":"gcs","gcs":{"bucket":"exports","prefix":"waves/"}},"singer":{"enabled":true}}`
	p, err := Load(writeFile(t, "pipeline.json", body), nil)
	require.NoError(t, err)
	assert.Equal(t, "exports", p.Source.GCS.Bucket)
	assert.Equal(t, "waves/", p.Source.GCS.Prefix)
	assert.True(t, p.Singer.Enabled)
	assert.True(t, p.Singer.ToStdout())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SURVEYETL_TEST_DB", "x.db")
	t.Setenv("SURVEYETL_RUNTIME__FILE_WORKERS", "2")
	t.Setenv("SURVEYETL_RUNTIME__ON_FILE_ERROR", "skip")
	t.Setenv("SURVEYETL_SURVEY__ROOT_COLUMNS", "id,wave")
	t.Setenv("SURVEYETL_SURVEY__IDENTIFIER", "id")

	p, err := Load(writeFile(t, "pipeline.yaml", sampleYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Runtime.FileWorkers)
	assert.Equal(t, OnFileErrorSkip, p.Runtime.OnFileError)
	assert.Equal(t, []string{"id", "wave"}, p.Survey.RootColumns)

	roots, err := p.Survey.Roots()
	require.NoError(t, err)
	assert.Equal(t, "id", roots.Identifier())
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SURVEYETL_TEST_DB", "x.db")
	t.Setenv("SURVEYETL_RUNTIME__FILE_WORKERS", "2")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--workers", "8", "--storage-kind", "postgres", "--singer"}))

	p, err := Load(writeFile(t, "pipeline.yaml", sampleYAML), fs)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Runtime.FileWorkers)
	assert.Equal(t, "postgres", p.Storage.Kind)
	assert.True(t, p.Singer.Enabled)
	assert.Equal(t, "/data/exports", p.Source.Local.Dir, "unset flags must not override")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "runtime.file_workers", envKey("SURVEYETL_RUNTIME__FILE_WORKERS"))
	assert.Equal(t, "job", envKey("SURVEYETL_JOB"))
	assert.Equal(t, "source.gcs.target_dir", envKey("SURVEYETL_SOURCE__GCS__TARGET_DIR"))
}

func validPipeline() Pipeline {
	return Pipeline{
		Job:     "j",
		Source:  Source{Kind: SourceLocal, Local: Local{Dir: "/in", Pattern: "*.sav"}},
		Decoder: Decoder{Kind: DecoderCSV},
		Survey:  Survey{PlaceholderMarker: "_question"},
		Storage: Storage{Kind: "sqlite", DSN: ":memory:"},
		Runtime: Runtime{FileWorkers: 1, BatchSize: 10, OnFileError: OnFileErrorFail},
	}
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Pipeline)
		wantPath string
		wantSev  Severity
	}{
		{name: "unknown_source", mutate: func(p *Pipeline) { p.Source.Kind = "ftp" }, wantPath: "source.kind", wantSev: SeverityError},
		{name: "local_without_dir", mutate: func(p *Pipeline) { p.Source.Local.Dir = "" }, wantPath: "source.local.dir", wantSev: SeverityError},
		{name: "bad_pattern", mutate: func(p *Pipeline) { p.Source.Local.Pattern = "[" }, wantPath: "source.local.pattern", wantSev: SeverityError},
		{name: "gcs_without_bucket", mutate: func(p *Pipeline) { p.Source.Kind = SourceGCS }, wantPath: "source.gcs.bucket", wantSev: SeverityError},
		{name: "unknown_decoder", mutate: func(p *Pipeline) { p.Decoder.Kind = "sav" }, wantPath: "decoder.kind", wantSev: SeverityError},
		{name: "identifier_not_root", mutate: func(p *Pipeline) { p.Survey.RootColumns = []string{"a"}; p.Survey.Identifier = "b" }, wantPath: "survey.root_columns", wantSev: SeverityError},
		{name: "unknown_storage", mutate: func(p *Pipeline) { p.Storage.Kind = "oracle" }, wantPath: "storage.kind", wantSev: SeverityError},
		{name: "storage_without_dsn", mutate: func(p *Pipeline) { p.Storage.DSN = " " }, wantPath: "storage.dsn", wantSev: SeverityError},
		{name: "no_sink", mutate: func(p *Pipeline) { p.Storage = Storage{} }, wantPath: "storage", wantSev: SeverityError},
		{name: "zero_workers", mutate: func(p *Pipeline) { p.Runtime.FileWorkers = 0 }, wantPath: "runtime.file_workers", wantSev: SeverityError},
		{name: "zero_batch", mutate: func(p *Pipeline) { p.Runtime.BatchSize = 0 }, wantPath: "runtime.batch_size", wantSev: SeverityError},
		{name: "bad_policy", mutate: func(p *Pipeline) { p.Runtime.OnFileError = "retry" }, wantPath: "runtime.on_file_error", wantSev: SeverityError},
		{name: "empty_job_warns", mutate: func(p *Pipeline) { p.Job = "" }, wantPath: "job", wantSev: SeverityWarning},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tc.mutate(&p)
			issues := ValidatePipeline(p)

			var found bool
			for _, iss := range issues {
				if iss.Path == tc.wantPath && iss.Severity == tc.wantSev {
					found = true
				}
			}
			assert.True(t, found, "issues=%v", issues)
			assert.Equal(t, tc.wantSev == SeverityError, HasErrors(issues))
		})
	}

	assert.Empty(t, ValidatePipeline(validPipeline()))
}

func TestSurveyProcessor(t *testing.T) {
	t.Parallel()

	p, err := Survey{PlaceholderMarker: "_grp", AllNullIsPlaceholder: false}.Processor(nil)
	require.NoError(t, err)
	assert.Equal(t, survey.DefaultRootColumns().Names(), p.Roots.Names())
	assert.Equal(t, "_grp", p.Questions.Marker)
	assert.False(t, p.Questions.AllNullIsPlaceholder)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":     "x",
		"n":     float64(3),
		"ns":    " 7 ",
		"b":     true,
		"bs":    "false",
		"tab":   `\t`,
		"semi":  ";",
		"multi": "ab",
		"m":     map[string]any{"a": "1", "b": 2},
	}
	assert.Equal(t, "x", o.String("s", "d"))
	assert.Equal(t, "d", o.String("missing", "d"))
	assert.Equal(t, 3, o.Int("n", 0))
	assert.Equal(t, 7, o.Int("ns", 0))
	assert.Equal(t, 9, o.Int("s", 9))
	assert.True(t, o.Bool("b", false))
	assert.False(t, o.Bool("bs", true))
	assert.True(t, o.Bool("missing", true))
	assert.Equal(t, '\t', o.Rune("tab", ','))
	assert.Equal(t, ';', o.Rune("semi", ','))
	assert.Equal(t, ',', o.Rune("multi", ','))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, o.StringMap("m"))
	assert.Nil(t, o.StringMap("missing"))

	v, ok := o.Any("b")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}
