package dbconn

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/emanehab99/gstar-stats/internal/config"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite3", SQLite, false},
		{"SQLite", SQLite, false},
		{"", MySQL, false},
		{"mysql", MySQL, false},
		{"postgresql", Postgres, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDialect(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?) AND c = '?'"
	if got := MySQL.Rebind(q); got != q {
		t.Errorf("mysql rebind changed query: %q", got)
	}
	want := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3) AND c = '?'"
	if got := Postgres.Rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := Placeholders(n); got != want {
			t.Errorf("Placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestUpsert(t *testing.T) {
	cols := []string{"name", "size"}
	if got := SQLite.Upsert("processed_log_file", "name", cols); got !=
		"INSERT INTO processed_log_file (name, size) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET size = excluded.size" {
		t.Errorf("sqlite upsert = %q", got)
	}
	if got := MySQL.Upsert("processed_log_file", "name", cols); got !=
		"INSERT INTO processed_log_file (name, size) VALUES (?, ?) ON DUPLICATE KEY UPDATE size = VALUES(size)" {
		t.Errorf("mysql upsert = %q", got)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, false},
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres other", &pq.Error{Code: "42P01"}, false},
		{"wrapped mysql", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), true},
		{"sqlite text", errors.New("UNIQUE constraint failed: job_event.event_id"), true},
		{"plain", errors.New("disk I/O error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateKey(tt.err); got != tt.want {
				t.Errorf("IsDuplicateKey(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDuplicateKey_SQLiteDriverError(t *testing.T) {
	db, err := Open(context.Background(), config.DBConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "dup.db")}, RetryPolicy{Attempts: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE k (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO k (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Exec(`INSERT INTO k (id) VALUES ('a')`)
	if !IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey(%v) = false, want true", err)
	}
}

func TestDSN(t *testing.T) {
	my, err := DSN(MySQL, config.DBConfig{Host: "db", User: "u", Password: "p", Database: "stats"})
	if err != nil {
		t.Fatalf("mysql DSN: %v", err)
	}
	if !strings.HasPrefix(my, "u:p@tcp(db:3306)/stats?") || !strings.Contains(my, "parseTime=true") {
		t.Errorf("mysql DSN = %q", my)
	}

	pg, err := DSN(Postgres, config.DBConfig{Host: "tao", User: "reader", Password: "a b", Database: "taodb"})
	if err != nil {
		t.Fatalf("postgres DSN: %v", err)
	}
	for _, part := range []string{"host=tao", "port=5432", "user=reader", "password='a b'", "dbname=taodb"} {
		if !strings.Contains(pg, part) {
			t.Errorf("postgres DSN %q missing %q", pg, part)
		}
	}

	if _, err := DSN(SQLite, config.DBConfig{}); err == nil {
		t.Error("expected error for sqlite without path")
	}
}

func TestOpen_RetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, config.DBConfig{Driver: "mysql", Host: "127.0.0.1", Port: 1}, RetryPolicy{Attempts: 2})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
