// Package state persists per-stream replication bookmarks between runs.
//
// Every stream shares the same cursor (the source file's modification
// time), so a file is skipped only when all streams have already moved past
// it.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"surveyetl/internal/survey"
)

// Bookmark is one stream's replication cursor.
type Bookmark struct {
	ReplicationKey      string    `json:"replication_key"`
	ReplicationKeyValue time.Time `json:"replication_key_value"`
}

// State holds the bookmarks keyed by stream name.
type State struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// New returns an empty state.
func New() *State {
	return &State{Bookmarks: map[string]Bookmark{}}
}

// Load reads state from path. A missing file yields an empty state.
func Load(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}
	s := New()
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]Bookmark{}
	}
	return s, nil
}

// Save writes state to path atomically: a temp file in the same directory is
// renamed over the target.
func (s *State) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("state: rename %s: %w", tmp, err)
	}
	return nil
}

// Cursor returns the oldest bookmark across streams. ok is false when any
// stream has no bookmark yet.
func (s *State) Cursor(streams []string) (cursor time.Time, ok bool) {
	for i, name := range streams {
		bm, found := s.Bookmarks[name]
		if !found {
			return time.Time{}, false
		}
		if i == 0 || bm.ReplicationKeyValue.Before(cursor) {
			cursor = bm.ReplicationKeyValue
		}
	}
	return cursor, len(streams) > 0
}

// Filter returns the files modified strictly after the cursor of streams,
// preserving order. Without a complete cursor every file is kept.
func (s *State) Filter(files []survey.SourceFile, streams []string) []survey.SourceFile {
	cursor, ok := s.Cursor(streams)
	if !ok {
		return files
	}
	out := make([]survey.SourceFile, 0, len(files))
	for _, f := range files {
		if f.Modified.After(cursor) {
			out = append(out, f)
		}
	}
	return out
}

// Advance moves each stream's bookmark forward to modified. Bookmarks never
// move backwards.
func (s *State) Advance(streams []string, key string, modified time.Time) {
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]Bookmark{}
	}
	for _, name := range streams {
		bm, ok := s.Bookmarks[name]
		if ok && !modified.After(bm.ReplicationKeyValue) {
			continue
		}
		s.Bookmarks[name] = Bookmark{ReplicationKey: key, ReplicationKeyValue: modified.UTC()}
	}
}
