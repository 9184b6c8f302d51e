package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a storage backend.
type Config struct {
	Kind string
	DSN  string
}

// TableLoad is the full set of rows one source file contributes to one table.
// Columns align with every row.
type TableLoad struct {
	Spec    TableSpec
	Columns []string
	Rows    [][]any
}

// Repository is the backend-agnostic sink for survey records.
//
// Each backend implements these semantics in its own SQL dialect.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates the tables marked AutoCreateTable when missing.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// ReplaceFile atomically replaces everything sourceFile contributed: in a
	// single transaction it deletes rows whose SourceFileColumn equals
	// sourceFile from every table in loads, then inserts the new rows in
	// multi-row batches of at most batchSize rows. It returns the number of
	// rows inserted. Re-running it for the same file is idempotent.
	ReplaceFile(ctx context.Context, sourceFile string, loads []TableLoad, batchSize int) (int64, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind (e.g. "sqlite").
// Backends call it from init. Register panics if kind is empty, f is nil, or
// kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Batches splits rows into consecutive chunks of at most size rows.
// A size < 1 yields a single chunk.
func Batches(rows [][]any, size int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	if size < 1 || size >= len(rows) {
		return [][][]any{rows}
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// MaxRowsPerStatement caps rows per INSERT so that rows*columns stays within
// a driver's bind-parameter limit. It never returns less than 1.
func MaxRowsPerStatement(batchSize, columns, paramLimit int) int {
	if columns < 1 {
		return max(batchSize, 1)
	}
	limit := paramLimit / columns
	if batchSize < 1 || batchSize > limit {
		batchSize = limit
	}
	return max(batchSize, 1)
}
