package migrate

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatements(t *testing.T) {
	got := statements("-- header\ncreate table a(x text default ';'); -- trailing\n\ninsert into a values ('b;c--d');\n;")
	want := []string{"create table a(x text default ';')", "insert into a values ('b;c--d')"}
	if len(got) != len(want) {
		t.Fatalf("expected %d statements, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Postgres.Placeholder(2); got != "$2" {
		t.Fatalf("postgres placeholder %q", got)
	}
	if got := SQLite.Placeholder(2); got != "?" {
		t.Fatalf("sqlite placeholder %q", got)
	}
}

func TestLoadPairsScripts(t *testing.T) {
	files := fstest.MapFS{
		"sql/0002_b.up.sql":   {Data: []byte("create table b(id int);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
		"sql/0001_a.up.sql":   {Data: []byte("create table a(id int);")},
		"sql/README.md":       {Data: []byte("notes")},
	}
	got, err := Load(files, "sql")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Version != "0001" || got[0].Name != "a" || got[0].Down == "" || got[1].Down != "" {
		t.Fatalf("unexpected migrations %+v", got)
	}

	if got, err := Load(files, "missing"); err != nil || got != nil {
		t.Fatalf("missing dir should be empty, got %v %v", got, err)
	}

	cases := map[string]fstest.MapFS{
		"down only":      {"sql/0001_a.down.sql": {Data: []byte("drop table a;")}},
		"shared version": {"sql/0001_a.up.sql": {Data: []byte("x;")}, "sql/0001_b.up.sql": {Data: []byte("y;")}},
		"no version":     {"sql/init.up.sql": {Data: []byte("x;")}},
	}
	for name, fsys := range cases {
		if _, err := Load(fsys, "sql"); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUpSkipsApplied(t *testing.T) {
	files := fstest.MapFS{
		"sql/0001_a.up.sql":   {Data: []byte("create table a(id int);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
		"sql/0002_b.up.sql":   {Data: []byte("create table b(id int);")},
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists credential_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select version, name from credential_migrations order by version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}).AddRow("0001", "a"))
	mock.ExpectBegin()
	mock.ExpectExec(`create table b`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into credential_migrations`).
		WithArgs("0002", "b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := NewManager(db, files, "sql", Postgres).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFailedStepLeavesNoRecord(t *testing.T) {
	files := fstest.MapFS{"sql/0001_a.up.sql": {Data: []byte("create table a(id int);")}}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists audit_steps`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select version, name from audit_steps`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`create table a`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewManager(db, files, "sql", SQLite, WithTable("audit_steps")).Up(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	files := fstest.MapFS{
		"sql/0001_a.up.sql":   {Data: []byte("create table a(id int);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists credential_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select version, name from credential_migrations order by version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}).AddRow("0001", "a"))
	mock.ExpectBegin()
	mock.ExpectExec(`drop table a`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from credential_migrations where version = \?`).
		WithArgs("0001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := NewManager(db, files, "sql", SQLite).Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists credential_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select version, name from credential_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "name"}))

	err = NewManager(db, fstest.MapFS{}, "sql", Postgres).Down(context.Background())
	if !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}
