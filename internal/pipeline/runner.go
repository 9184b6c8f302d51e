// Package pipeline runs one survey extraction: list source files, decode
// each one, derive the four record streams and hand them to the configured
// sinks (database tables and/or Singer messages).
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"surveyetl/internal/catalog"
	"surveyetl/internal/config"
	"surveyetl/internal/decode"
	"surveyetl/internal/singer"
	"surveyetl/internal/source"
	"surveyetl/internal/state"
	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner wires the pipeline's collaborators. Every field is a seam; use
// NewDefaultRunner for production wiring.
type Runner struct {
	NewLister     func(ctx context.Context, cfg config.Source, logger Logger) (source.Lister, error)
	NewDecoder    func(kind string, opts config.Options) (decode.Decoder, error)
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// OpenOutput opens a Singer output file. Stdout receives Singer messages
	// when the configured output is "-" or empty.
	OpenOutput func(path string) (io.WriteCloser, error)
	Stdout     io.Writer

	Logger Logger
}

// NewDefaultRunner returns a Runner backed by the real source, decoder and
// storage packages. Storage backends must be registered by the caller
// (see internal/storage/all).
func NewDefaultRunner(stdout io.Writer, logger Logger) *Runner {
	return &Runner{
		NewLister: func(ctx context.Context, cfg config.Source, logger Logger) (source.Lister, error) {
			return source.New(ctx, cfg, logger)
		},
		NewDecoder: decode.New,
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return storage.New(ctx, cfg)
		},
		OpenOutput: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
		Stdout: stdout,
		Logger: logger,
	}
}

// Summary reports the outcome of one run.
type Summary struct {
	Files   int            // files processed successfully
	Skipped int            // files excluded by bookmarks
	Failed  int            // files that failed under on_file_error=skip
	Records map[string]int // records per stream
}

// Run executes the pipeline described by cfg.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (Summary, error) {
	sum := Summary{Records: map[string]int{}}

	if issues := config.ValidatePipeline(cfg); config.HasErrors(issues) {
		msgs := make([]string, 0, len(issues))
		for _, iss := range issues {
			if iss.Severity == config.SeverityError {
				msgs = append(msgs, iss.String())
			}
		}
		return sum, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	logf := r.logger()

	proc, err := cfg.Survey.Processor(r.Logger)
	if err != nil {
		return sum, err
	}
	streams := catalog.Streams(proc.Roots, cfg.Storage.TablePrefix, cfg.Storage.AutoCreateTable)
	names := catalog.Names(streams)

	files, err := r.list(ctx, cfg)
	if err != nil {
		return sum, err
	}

	st := state.New()
	if cfg.State.Path != "" {
		if st, err = state.Load(cfg.State.Path); err != nil {
			return sum, err
		}
		kept := st.Filter(files, names)
		sum.Skipped = len(files) - len(kept)
		files = kept
		for i := 0; i < sum.Skipped; i++ {
			recordFile(statusSkipped)
		}
	}
	logf("stage=list ok files=%d skipped=%d", len(files), sum.Skipped)

	dec, err := r.NewDecoder(cfg.Decoder.Kind, cfg.Decoder.Options)
	if err != nil {
		return sum, err
	}

	sinks, closeSinks, err := r.openSinks(ctx, cfg, streams)
	if err != nil {
		return sum, err
	}
	defer closeSinks()

	eng := &engine{
		proc:      proc,
		decoder:   dec,
		streams:   streams,
		sinks:     sinks,
		batchSize: cfg.Runtime.BatchSize,
		workers:   cfg.Runtime.FileWorkers,
		skipBad:   cfg.Runtime.OnFileError == config.OnFileErrorSkip,
		logf:      logf,
	}
	out, err := eng.run(ctx, files)
	sum.Files = out.files
	sum.Failed = out.failed
	for k, v := range out.records {
		sum.Records[k] = v
	}
	if err != nil {
		return sum, err
	}

	if cursor, ok := out.advanceTo(); ok {
		st.Advance(names, catalog.ReplicationKey, cursor)
	}
	if cfg.State.Path != "" {
		if err := st.Save(cfg.State.Path); err != nil {
			return sum, err
		}
	}
	if sinks.singer != nil {
		if err := sinks.singer.WriteState(st); err != nil {
			return sum, err
		}
	}

	logf("stage=done files=%d skipped=%d failed=%d records=%v", sum.Files, sum.Skipped, sum.Failed, sum.Records)
	return sum, nil
}

func (r *Runner) list(ctx context.Context, cfg config.Pipeline) (files []survey.SourceFile, err error) {
	t := startStep("list")
	defer func() { t.done(err) }()

	lister, err := r.NewLister(ctx, cfg.Source, r.Logger)
	if err != nil {
		return nil, err
	}
	if c, ok := lister.(io.Closer); ok {
		defer c.Close()
	}
	return lister.List(ctx)
}

// sinks are the destinations of processed files. Either may be nil.
type sinks struct {
	repo   storage.Repository
	singer *singer.Writer
}

func (r *Runner) openSinks(ctx context.Context, cfg config.Pipeline, streams []catalog.Stream) (sinks, func(), error) {
	var s sinks
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Storage.Enabled() {
		repo, err := r.NewRepository(ctx, storage.Config{
			Kind: cfg.Storage.Kind,
			DSN:  cfg.Storage.DSN,
		})
		if err != nil {
			return sinks{}, nil, fmt.Errorf("storage: %w", err)
		}
		closers = append(closers, repo.Close)

		if err := repo.EnsureTables(ctx, catalog.Tables(streams)); err != nil {
			closeAll()
			return sinks{}, nil, err
		}
		s.repo = repo
	}

	if cfg.Singer.Enabled {
		w := r.Stdout
		if !cfg.Singer.ToStdout() {
			f, err := r.OpenOutput(cfg.Singer.Output)
			if err != nil {
				closeAll()
				return sinks{}, nil, fmt.Errorf("singer output: %w", err)
			}
			closers = append(closers, func() { _ = f.Close() })
			w = f
		}
		if w == nil {
			w = io.Discard
		}
		s.singer = singer.NewWriter(w)
		if err := s.singer.WriteSchemas(streams); err != nil {
			closeAll()
			return sinks{}, nil, err
		}
	}
	return s, closeAll, nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}
