package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const t0 = int64(1488362400) // 2017-03-01T10:00:00Z

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{BatchSize: 2})
	path := filepath.Join(t.TempDir(), "events.Mar.2017")
	writeLog(t, path,
		eventLine("1", "J1", "alice", t0, t0+3600, 4),
		eventLine("2", "J2", "bob", t0, t0+7200, 2),
		eventLine("3", "J3", "carol", t0, t0+60, 1),
	)

	first, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := first.Totals(); got.Inserted != 3 || got.Deduped != 0 {
		t.Fatalf("first totals = %+v", got)
	}
	if first.RunID == "" {
		t.Error("run id is empty")
	}

	second, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(second.Files) != 1 || !second.Files[0].Skipped || second.Files[0].Reason != ReasonUnchanged {
		t.Fatalf("second run files = %+v", second.Files)
	}
	if got := countEvents(t, s); got != 3 {
		t.Fatalf("events = %d, want 3", got)
	}
}

func TestPipeline_AppendedLinesOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	path := filepath.Join(t.TempDir(), "events.1")
	writeLog(t, path,
		eventLine("1", "J1", "alice", t0, t0+3600, 4),
		eventLine("2", "J2", "bob", t0, t0+3600, 4),
	)
	if _, err := p.Run(ctx, []string{path}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	appendLog(t, path,
		eventLine("3", "J3", "carol", t0, t0+3600, 4),
		"12:00:00 1488366000:9 job J9 JOBSTART 1 1 dave",
	)
	res, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("Run after append: %v", err)
	}
	fr := res.Files[0]
	if fr.Reason != ReasonGrown {
		t.Fatalf("reason = %q, want grown", fr.Reason)
	}
	if fr.Lines != 2 || fr.Inserted != 1 || fr.Deduped != 0 || fr.NotTerminal != 1 {
		t.Fatalf("appended pass = %+v, want only the two new lines read", fr)
	}
	if got := countEvents(t, s); got != 3 {
		t.Fatalf("events = %d, want 3", got)
	}
}

func TestPipeline_SkipsNonEventsAndBadLines(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	path := filepath.Join(t.TempDir(), "events.2")
	writeLog(t, path,
		eventLine("1", "J1", "alice", t0, t0+3600, 4),
		"12:00:00 1488366000:7 job J7 JOBEND 2 4 alice groupA",
		"",
		"12:00:00 1488366000:8 rsv R1 RSVSTART",
		"12:00:00 1488366000:9 job J9 JOBSTART 1 1 dave",
		eventLine("2", "J2", "bob", t0, t0+3600, 4),
	)

	res, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fr := res.Files[0]
	if fr.Lines != 5 || fr.Accepted != 2 || fr.Malformed != 1 || fr.NotJob != 1 || fr.NotTerminal != 1 {
		t.Fatalf("file result = %+v", fr)
	}
	if got := countEvents(t, s); got != 2 {
		t.Fatalf("events = %d, want 2", got)
	}
}

func TestPipeline_TruncatedFileDedupes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	path := filepath.Join(t.TempDir(), "events.3")
	writeLog(t, path,
		eventLine("1", "J1", "alice", t0, t0+3600, 4),
		eventLine("2", "J2", "bob", t0, t0+3600, 4),
	)
	if _, err := p.Run(ctx, []string{path}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writeLog(t, path, eventLine("1", "J1", "alice", t0, t0+3600, 4))
	res, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("Run after truncate: %v", err)
	}
	fr := res.Files[0]
	if fr.Reason != ReasonTruncated || fr.Deduped != 1 || fr.Inserted != 0 {
		t.Fatalf("truncated pass = %+v", fr)
	}
}

func TestPipeline_PurgesAdminsOncePerRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{Admins: []string{"root", "hpcadmin"}})
	dir := t.TempDir()
	a := filepath.Join(dir, "events.a")
	b := filepath.Join(dir, "events.b")
	writeLog(t, a, eventLine("1", "J1", "alice", t0, t0+3600, 4), eventLine("2", "J2", "root", t0, t0+3600, 4))
	writeLog(t, b, eventLine("3", "J3", "hpcadmin", t0, t0+3600, 4))

	res, err := p.Run(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Purged != 2 {
		t.Fatalf("purged = %d, want 2", res.Purged)
	}
	if got := countEvents(t, s); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestPipeline_MissingFileAbortsRun(t *testing.T) {
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	if _, err := p.Run(context.Background(), []string{filepath.Join(t.TempDir(), "events.gone")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPipeline_UnterminatedTailWaitsForNextRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	path := filepath.Join(t.TempDir(), "events.p")
	first := eventLine("1", "J1", "alice", t0, t0+3600, 4) + "\n"
	second := eventLine("2", "J2", "bob", t0, t0+7200, 2)
	half := len(second) / 2
	if err := os.WriteFile(path, []byte(first+second[:half]), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	res, err := p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	fr := res.Files[0]
	if fr.Lines != 1 || fr.Inserted != 1 || fr.Malformed != 0 {
		t.Fatalf("first pass = %+v, want only the complete line read", fr)
	}
	pf, found, err := p.tracker.Lookup(ctx, path)
	if err != nil || !found || pf.Size != int64(len(first)) {
		t.Fatalf("progress = %+v, %v, %v, want %d bytes", pf, found, err, len(first))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString(second[half:] + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	res, err = p.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	fr = res.Files[0]
	if fr.Offset != int64(len(first)) || fr.Lines != 1 || fr.Inserted != 1 || fr.NotJob != 0 {
		t.Fatalf("second pass = %+v, want the finished line read whole", fr)
	}
	if got := countEvents(t, s); got != 2 {
		t.Fatalf("events = %d, want 2", got)
	}
}

func TestPipeline_OversizedLineIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPipeline(s, Options{})
	dir := t.TempDir()
	path := filepath.Join(dir, "events.big")
	next := filepath.Join(dir, "events.next")
	writeLog(t, path,
		eventLine("1", "J1", "alice", t0, t0+3600, 4),
		strings.Repeat("x", 2*maxLineBytes),
		eventLine("2", "J2", "bob", t0, t0+3600, 4),
	)
	writeLog(t, next, eventLine("3", "J3", "carol", t0, t0+3600, 4))

	res, err := p.Run(ctx, []string{path, next})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fr := res.Files[0]
	if fr.Lines != 3 || fr.Inserted != 2 || fr.Malformed != 1 {
		t.Fatalf("file result = %+v", fr)
	}
	if got := res.Totals().Inserted; got != 3 {
		t.Fatalf("inserted = %d, want 3", got)
	}
	info, _ := os.Stat(path)
	if pf, _, _ := p.tracker.Lookup(ctx, path); pf.Size != info.Size() {
		t.Fatalf("progress = %d, want %d", pf.Size, info.Size())
	}
}
