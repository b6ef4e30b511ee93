package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
)

// Decision reasons.
const (
	ReasonNew       = "new"
	ReasonGrown     = "grown"
	ReasonTruncated = "truncated"
	ReasonUnchanged = "unchanged"
)

// Decision says whether a file needs reading and from which byte.
type Decision struct {
	Path   string
	Ingest bool
	Offset int64
	Size   int64
	Reason string
}

// Tracker remembers how many bytes of each log file have been ingested.
type Tracker struct {
	db *dbconn.DB
}

func NewTracker(db *dbconn.DB) *Tracker {
	return &Tracker{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Lookup returns the recorded progress for path, if any.
func (t *Tracker) Lookup(ctx context.Context, path string) (core.ProcessedFile, bool, error) {
	var size int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`SELECT size FROM `+processedTable+` WHERE name = ?`), path).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProcessedFile{}, false, nil
	}
	if err != nil {
		return core.ProcessedFile{}, false, fmt.Errorf("ingest: lookup progress %s: %w", path, err)
	}
	return core.ProcessedFile{Path: path, Size: size}, true, nil
}

// ShouldIngest compares the on-disk size of path with its recorded progress.
// It does not write; progress is recorded only after a complete pass.
func (t *Tracker) ShouldIngest(ctx context.Context, path string) (Decision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Decision{}, fmt.Errorf("ingest: stat %s: %w", path, err)
	}
	size := info.Size()

	pf, found, err := t.Lookup(ctx, path)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Path: path, Size: size}
	switch {
	case !found:
		d.Ingest, d.Reason = true, ReasonNew
	case pf.Size == size:
		d.Reason = ReasonUnchanged
	case pf.Size < size:
		d.Ingest, d.Offset, d.Reason = true, pf.Size, ReasonGrown
	default:
		// Rotated or truncated: start over and let event ids absorb repeats.
		d.Ingest, d.Reason = true, ReasonTruncated
	}
	return d, nil
}

// RecordProgressTx stores size as the ingested length of path inside the
// caller's transaction.
func (t *Tracker) RecordProgressTx(ctx context.Context, tx *sql.Tx, path string, size int64) error {
	return t.recordProgress(ctx, tx, path, size)
}

func (t *Tracker) recordProgress(ctx context.Context, ex execer, path string, size int64) error {
	q := t.db.Rebind(t.db.Dialect.Upsert(processedTable, "name", []string{"name", "size"}))
	if _, err := ex.ExecContext(ctx, q, path, size); err != nil {
		return fmt.Errorf("ingest: record progress %s: %w", path, err)
	}
	return nil
}
