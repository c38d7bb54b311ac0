package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	logx "opsadmin/pkg/logx"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenBootstrapsSchema(t *testing.T) {
	t.Parallel()
	db := openMemory(t)

	for _, table := range []string{"schedule_job", "schedule_status_log", "schedule_event_log"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
	if db.Dialect() != DialectSQLite {
		t.Fatalf("dialect=%q", db.Dialect())
	}
}

func TestOpenIsIdempotentOnFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "mysql"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()
	pg := Wrap(nil, DialectPostgres)
	got := pg.Rebind(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	if got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Fatalf("rebind=%q", got)
	}
	lite := Wrap(nil, DialectSQLite)
	if q := lite.Rebind(`SELECT ?`); q != `SELECT ?` {
		t.Fatalf("sqlite rebind changed query: %q", q)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()
	dsn, err := postgresDSN(Config{Host: "db", User: "ops", Password: "p@ss:w/rd", Name: "admin"})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "postgres://ops:p%40ss%3Aw%2Frd@db:5432/admin") {
		t.Fatalf("dsn=%q", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn missing sslmode: %q", dsn)
	}
	if got, _ := postgresDSN(Config{DSN: " postgres://x "}); got != "postgres://x" {
		t.Fatalf("explicit dsn=%q", got)
	}
	if _, err := postgresDSN(Config{}); err == nil {
		t.Fatalf("expected error without host")
	}
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	t.Parallel()
	db := openMemory(t)
	ins := `INSERT INTO schedule_job(name, source, job_type, status, created_at, updated_at) VALUES(?,1,2,1,0,0)`
	if _, err := db.Exec(ins, "dup"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Exec(ins, "dup")
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("other")) {
		t.Fatalf("plain error classified as unique violation")
	}
}
