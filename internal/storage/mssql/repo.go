// Package mssql implements storage.Repository for Microsoft SQL Server using
// database/sql and the go-mssqldb "sqlserver" driver.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"surveyetl/internal/storage"
)

// maxParams is SQL Server's per-request parameter limit (2100) with headroom
// for the driver.
const maxParams = 2000

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(64)
	raw.SetMaxIdleConns(64)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases the database handle.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates every auto-created table guarded by OBJECT_ID.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceFile implements storage.Repository. Inserts are chunked so that no
// statement exceeds the parameter limit.
func (r *Repo) ReplaceFile(ctx context.Context, sourceFile string, loads []storage.TableLoad, batchSize int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total int64
	for _, l := range loads {
		if _, err := tx.ExecContext(ctx, buildDeleteSQL(l.Spec.Name), sourceFile); err != nil {
			return 0, fmt.Errorf("mssql: delete %s: %w", l.Spec.Name, err)
		}

		per := storage.MaxRowsPerStatement(batchSize, len(l.Columns), maxParams)
		for _, batch := range storage.Batches(l.Rows, per) {
			q, args := buildBulkInsertSQL(l.Spec.Name, l.Columns, batch)
			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("mssql: insert %s: %w", l.Spec.Name, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	committed = true
	return total, nil
}

func columnType(logical string) string {
	switch logical {
	case storage.TypeDouble:
		return "FLOAT"
	case storage.TypeBool:
		return "BIT"
	case storage.TypeTimestamp:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

// keyColumnType bounds text primary key columns; SQL Server cannot index
// NVARCHAR(MAX).
func keyColumnType(logical string) string {
	if logical == storage.TypeText {
		return "NVARCHAR(450)"
	}
	return columnType(logical)
}

// buildCreateSQL returns an idempotent CREATE TABLE guarded by OBJECT_ID.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	pk := make(map[string]bool, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		pk[k] = true
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ := columnType(c.Type)
		if pk[c.Name] {
			typ = keyColumnType(c.Type)
		}
		null := " NULL"
		if !c.IsNullable() || pk[c.Name] {
			null = " NOT NULL"
		}
		parts = append(parts, mssqlIdent(c.Name)+" "+typ+null)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		mssqlTableIdent(t.Name),
		strings.Join(parts, ", "),
	), nil
}

func buildDeleteSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = @p1", mssqlTableIdent(table), mssqlIdent(storage.SourceFileColumn))
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for rows
// with @pN placeholders.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdents(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func joinIdents(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name:
// "dbo.question" -> [dbo].[question].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the subset of *sql.DB used by Repo.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the subset of *sql.Tx used by Repo.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sql.Tx)(nil)
)
