package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/emanehab99/gstar-stats/internal/config"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := dbconn.Open(context.Background(), config.DBConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "stats.db"),
	}, dbconn.RetryPolicy{Attempts: 1})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return store
}

// eventLine builds a job end record for user that ran cpus cores for
// end-start seconds.
func eventLine(eventID, jobID, user string, start, end int64, cpus int) string {
	tok := make([]string, 56)
	for i := range tok {
		tok[i] = "-"
	}
	tok[0] = "12:00:00"
	tok[1] = strconv.FormatInt(end, 10) + ":" + eventID
	tok[2] = "job"
	tok[3] = jobID
	tok[4] = "JOBEND"
	tok[5] = "1"
	tok[6] = strconv.Itoa(cpus)
	tok[7] = user
	tok[8] = "astro"
	tok[9] = "3600"
	tok[11] = "[sstar:1]"
	tok[12] = strconv.FormatInt(start, 10)
	tok[14] = strconv.FormatInt(start, 10)
	tok[15] = strconv.FormatInt(end, 10)
	tok[28] = "p001"
	tok[33] = "skylake"
	tok[37] = "100M"
	tok[55] = strconv.FormatInt(start, 10)
	return strings.Join(tok, " ")
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func countEvents(t *testing.T, s *Store) int64 {
	t.Helper()
	n, err := s.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	return n
}
