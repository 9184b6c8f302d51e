package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"surveyetl/internal/storage"
)

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

type execCall struct {
	query string
	args  []any
}

type fakeTx struct {
	calls      []execCall
	failOn     string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.failOn != "" && strings.HasPrefix(query, f.failOn) {
		return nil, errors.New("boom")
	}
	if strings.HasPrefix(query, "INSERT") {
		return fakeResult{n: int64(len(args))}, nil
	}
	return fakeResult{}, nil
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rolledBack = true
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	execs []string
}

func (f *fakeDB) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	return fakeResult{}, nil
}

func (f *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                           { return nil }

func questionSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:            "dbo.question",
		AutoCreateTable: true,
		Columns: []storage.ColumnSpec{
			{Name: "source_file", Type: storage.TypeText},
			{Name: "question_id", Type: storage.TypeText},
			{Name: "question_text", Type: storage.TypeText},
			{Name: "is_question_placeholder", Type: storage.TypeBool},
		},
		PrimaryKey: []string{"source_file", "question_id"},
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateSQL(questionSpec())
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.question', N'U') IS NULL BEGIN CREATE TABLE [dbo].[question] (" +
		"[source_file] NVARCHAR(450) NOT NULL, [question_id] NVARCHAR(450) NOT NULL, " +
		"[question_text] NVARCHAR(MAX) NULL, [is_question_placeholder] BIT NULL, " +
		"PRIMARY KEY ([source_file], [question_id])); END;"
	if got != want {
		t.Fatalf("ddl mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildBulkInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildBulkInsertSQL("question", []string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}})
	want := "INSERT INTO [question] ([a], [b]) VALUES (@p1, @p2), (@p3, @p4)"
	if q != want {
		t.Fatalf("query=%q want %q", q, want)
	}
	if len(args) != 4 || args[0] != 1 || args[3] != "y" {
		t.Fatalf("args=%v", args)
	}
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "question", want: "[question]"},
		{in: "dbo.question", want: "[dbo].[question]"},
		{in: "odd]name", want: "[odd]]name]"},
	}
	for _, tt := range tests {
		if got := mssqlTableIdent(tt.in); got != tt.want {
			t.Fatalf("mssqlTableIdent(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
	if got := buildDeleteSQL("dbo.question"); got != "DELETE FROM [dbo].[question] WHERE [source_file] = @p1" {
		t.Fatalf("delete=%q", got)
	}
}

func TestReplaceFileChunksUnderParamLimit(t *testing.T) {
	t.Parallel()

	spec := questionSpec()
	rows := make([][]any, 1200)
	for i := range rows {
		rows[i] = []any{"f.sav", fmt.Sprintf("Q%d", i), "text", false}
	}

	tx := &fakeTx{}
	r := &Repo{db: &fakeDB{tx: tx}}
	_, err := r.ReplaceFile(context.Background(), "f.sav", []storage.TableLoad{
		{Spec: spec, Columns: spec.ColumnNames(), Rows: rows},
	}, 1000)
	if err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}
	if !tx.committed {
		t.Fatalf("expected commit")
	}
	if len(tx.calls) < 2 || !strings.HasPrefix(tx.calls[0].query, "DELETE") {
		t.Fatalf("first statement must be the delete, got %+v", tx.calls)
	}
	if tx.calls[0].args[0] != "f.sav" {
		t.Fatalf("delete args=%v", tx.calls[0].args)
	}
	inserted := 0
	for _, c := range tx.calls[1:] {
		if len(c.args) > maxParams {
			t.Fatalf("statement has %d params, limit %d", len(c.args), maxParams)
		}
		inserted += len(c.args) / 4
	}
	if inserted != len(rows) {
		t.Fatalf("inserted=%d want %d", inserted, len(rows))
	}
}

func TestReplaceFileRollsBackOnError(t *testing.T) {
	t.Parallel()

	spec := questionSpec()
	tx := &fakeTx{failOn: "INSERT"}
	r := &Repo{db: &fakeDB{tx: tx}}
	_, err := r.ReplaceFile(context.Background(), "f.sav", []storage.TableLoad{
		{Spec: spec, Columns: spec.ColumnNames(), Rows: [][]any{{"f.sav", "Q1", "t", true}}},
	}, 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestEnsureTablesSkipsManagedTables(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	r := &Repo{db: db}
	managed := questionSpec()
	managed.AutoCreateTable = false
	if err := r.EnsureTables(context.Background(), []storage.TableSpec{questionSpec(), managed}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs=%d want 1", len(db.execs))
	}
}
