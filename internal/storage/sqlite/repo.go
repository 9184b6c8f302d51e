// Package sqlite implements storage.Repository on modernc.org/sqlite.
//
// SQLite has no native timestamp type, so time values are stored as
// RFC3339Nano text in UTC and parsed back with parseSQLiteTime.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"surveyetl/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for the bundled library.
const maxParams = 32766

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database named by cfg.DSN and checks the connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes writes anyway and in-memory
	// databases are per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables runs CREATE TABLE IF NOT EXISTS for every auto-created table.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceFile implements storage.Repository.
func (r *Repo) ReplaceFile(ctx context.Context, sourceFile string, loads []storage.TableLoad, batchSize int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, l := range loads {
		if _, err := tx.ExecContext(ctx, buildDeleteSQL(l.Spec.Name), sourceFile); err != nil {
			return 0, fmt.Errorf("sqlite: delete %s: %w", l.Spec.Name, err)
		}

		per := storage.MaxRowsPerStatement(batchSize, len(l.Columns), maxParams)
		for _, batch := range storage.Batches(l.Rows, per) {
			q, args := buildInsertSQL(l.Spec.Name, l.Columns, batch)
			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("sqlite: insert %s: %w", l.Spec.Name, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return total, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// sqlTable quotes a possibly schema-qualified table name.
func sqlTable(name string) string {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return sqlIdent(schema) + "." + sqlIdent(table)
	}
	return sqlIdent(name)
}

func columnType(logical string) string {
	switch logical {
	case storage.TypeDouble:
		return "REAL"
	case storage.TypeBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + columnType(c.Type)
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlTable(t.Name), strings.Join(parts, ",\n  ")), nil
}

func buildDeleteSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", sqlTable(table), sqlIdent(storage.SourceFileColumn))
}

// buildInsertSQL builds one multi-row INSERT. time.Time values are converted
// to RFC3339Nano text.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlTable(table))
	b.WriteString(" (")
	b.WriteString(joinIdents(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			args = append(args, toSQLiteValue(v))
		}
	}
	return b.String(), args
}

func toSQLiteValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatSQLiteTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return formatSQLiteTime(*x)
	default:
		return v
	}
}

func joinIdents(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps read back from SQLite.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00" and its fractional variant
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
