// Package source lists survey export files and makes them available on the
// local filesystem.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"surveyetl/internal/config"
	"surveyetl/internal/survey"
)

// DefaultPattern matches SPSS system files.
const DefaultPattern = "*.sav"

// Lister returns the files of one run. Every returned file has a readable
// LocalPath.
type Lister interface {
	List(ctx context.Context) ([]survey.SourceFile, error)
}

// Logger is the minimal logging interface used by listers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// New builds the lister selected by cfg.Kind. The returned lister may also
// implement io.Closer.
func New(ctx context.Context, cfg config.Source, logger Logger) (Lister, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case config.SourceLocal, "":
		return &Local{Dir: cfg.Local.Dir, Pattern: cfg.Local.Pattern}, nil
	case config.SourceGCS:
		return NewGCS(ctx, cfg.GCS, logger)
	default:
		return nil, fmt.Errorf("source: unknown kind %q (want local|gcs)", cfg.Kind)
	}
}

// Local lists regular files in Dir whose base name matches Pattern. The
// listing is not recursive and is ordered by name.
type Local struct {
	Dir     string
	Pattern string
}

// List implements Lister.
func (l *Local) List(ctx context.Context) ([]survey.SourceFile, error) {
	pattern := l.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("source: bad pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []survey.SourceFile
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("source: stat %s: %w", e.Name(), err)
		}
		full := filepath.Join(l.Dir, e.Name())
		out = append(out, survey.SourceFile{
			LocalPath: full,
			Name:      full,
			Modified:  info.ModTime().UTC(),
		})
	}
	return out, nil
}
