// Package postgres implements storage.Repository on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"surveyetl/internal/storage"
)

// maxParams is the Postgres wire protocol bind-parameter limit.
const maxParams = 65535

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a connection pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates schemas and tables for every auto-created table.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		schemaSQL, tableSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("postgres: create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceFile implements storage.Repository.
func (r *Repo) ReplaceFile(ctx context.Context, sourceFile string, loads []storage.TableLoad, batchSize int) (int64, error) {
	var total int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, l := range loads {
			if _, err := tx.Exec(ctx, buildDeleteSQL(l.Spec.Name), sourceFile); err != nil {
				return fmt.Errorf("postgres: delete %s: %w", l.Spec.Name, err)
			}

			per := storage.MaxRowsPerStatement(batchSize, len(l.Columns), maxParams)
			for _, batch := range storage.Batches(l.Rows, per) {
				q, args := buildInsertSQL(l.Spec.Name, l.Columns, batch)
				tag, err := tx.Exec(ctx, q, args...)
				if err != nil {
					return fmt.Errorf("postgres: insert %s: %w", l.Spec.Name, err)
				}
				total += tag.RowsAffected()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func pgIdent(id string) string {
	return pgx.Identifier{id}.Sanitize()
}

// pgTable quotes a possibly schema-qualified table name.
func pgTable(name string) string {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return pgx.Identifier{schema, table}.Sanitize()
	}
	return pgIdent(name)
}

func columnType(logical string) string {
	switch logical {
	case storage.TypeDouble:
		return "DOUBLE PRECISION"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// buildCreateSQL returns the optional CREATE SCHEMA and the CREATE TABLE
// statements for t.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := pgIdent(c.Name) + " " + columnType(c.Type)
		if !c.IsNullable() {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}

	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTable(t.Name), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

func buildDeleteSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE %s = $1;`, pgTable(table), pgIdent(storage.SourceFileColumn))
}

// buildInsertSQL constructs one multi-row INSERT and its args.
// Every row must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(table))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func joinIdents(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}
