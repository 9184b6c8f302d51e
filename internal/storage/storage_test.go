package storage

import (
	"context"
	"strings"
	"testing"
)

type fakeRepo struct{ closed int }

func (f *fakeRepo) Close() { f.closed++ }

func (f *fakeRepo) EnsureTables(context.Context, []TableSpec) error { return nil }

func (f *fakeRepo) ReplaceFile(context.Context, string, []TableLoad, int) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	t.Parallel()

	var gotDSN string
	Register("fake-registry-test", func(ctx context.Context, cfg Config) (Repository, error) {
		gotDSN = cfg.DSN
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-registry-test", DSN: "mem"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	repo.Close()
	if gotDSN != "mem" {
		t.Fatalf("factory got DSN %q, want mem", gotDSN)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-registry-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds()=%v, missing registered kind", Kinds())
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "missing kind") {
		t.Fatalf("empty kind err=%v", err)
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil || !strings.Contains(err.Error(), "unsupported kind=nope") {
		t.Fatalf("unknown kind err=%v", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	t.Parallel()

	f := func(context.Context, Config) (Repository, error) { return &fakeRepo{}, nil }
	Register("fake-dup-test", f)

	tests := []struct {
		name string
		kind string
		f    Factory
	}{
		{name: "empty_kind", kind: "", f: f},
		{name: "nil_factory", kind: "fake-nil-test", f: nil},
		{name: "duplicate", kind: "fake-dup-test", f: f},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register(%q) did not panic", tc.kind)
				}
			}()
			Register(tc.kind, tc.f)
		})
	}
}

func TestBatches(t *testing.T) {
	t.Parallel()

	rows := [][]any{{1}, {2}, {3}, {4}, {5}}
	tests := []struct {
		size int
		want []int
	}{
		{size: 2, want: []int{2, 2, 1}},
		{size: 5, want: []int{5}},
		{size: 10, want: []int{5}},
		{size: 0, want: []int{5}},
	}
	for _, tc := range tests {
		got := Batches(rows, tc.size)
		if len(got) != len(tc.want) {
			t.Fatalf("size=%d: %d batches, want %d", tc.size, len(got), len(tc.want))
		}
		for i, b := range got {
			if len(b) != tc.want[i] {
				t.Fatalf("size=%d batch %d len=%d, want %d", tc.size, i, len(b), tc.want[i])
			}
		}
	}
	if Batches(nil, 3) != nil {
		t.Fatalf("Batches(nil) should be nil")
	}
}

func TestMaxRowsPerStatement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		batch, cols, limit, want int
	}{
		{batch: 500, cols: 6, limit: 2100, want: 350},
		{batch: 100, cols: 6, limit: 2100, want: 100},
		{batch: 0, cols: 6, limit: 2100, want: 350},
		{batch: 10, cols: 5000, limit: 2100, want: 1},
		{batch: 10, cols: 0, limit: 2100, want: 10},
	}
	for _, tc := range tests {
		if got := MaxRowsPerStatement(tc.batch, tc.cols, tc.limit); got != tc.want {
			t.Fatalf("MaxRowsPerStatement(%d,%d,%d)=%d, want %d", tc.batch, tc.cols, tc.limit, got, tc.want)
		}
	}
}

func TestTableSpecValidate(t *testing.T) {
	t.Parallel()

	ok := TableSpec{
		Name: "question",
		Columns: []ColumnSpec{
			{Name: "question_id", Type: TypeText},
			{Name: SourceFileColumn, Type: TypeText},
		},
		PrimaryKey: []string{SourceFileColumn, "question_id"},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*TableSpec)
		want   string
	}{
		{name: "no_name", mutate: func(s *TableSpec) { s.Name = " " }, want: "table name is empty"},
		{name: "bad_type", mutate: func(s *TableSpec) { s.Columns[0].Type = "varchar" }, want: "unsupported type"},
		{name: "dup_column", mutate: func(s *TableSpec) { s.Columns[0].Name = SourceFileColumn }, want: "duplicate column"},
		{name: "pk_unknown", mutate: func(s *TableSpec) { s.PrimaryKey = []string{"nope"} }, want: "primary key column"},
		{name: "no_source_file", mutate: func(s *TableSpec) { s.Columns = s.Columns[:1]; s.PrimaryKey = nil }, want: "missing source_file"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := ok
			s.Columns = append([]ColumnSpec(nil), ok.Columns...)
			tc.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate err=%v, want contains %q", err, tc.want)
			}
		})
	}
}
