package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/logging"
	"github.com/emanehab99/gstar-stats/internal/parsers"
)

const (
	defaultBatchSize = 500
	readBufferSize   = 64 * 1024
	// maxLineBytes bounds one record; longer lines are skipped as malformed.
	maxLineBytes = 1024 * 1024
)

type Options struct {
	// Admins are purged from the event store once per run.
	Admins    []string
	BatchSize int
}

// Pipeline reads scheduler event logs into the store.
type Pipeline struct {
	store     *Store
	tracker   *Tracker
	admins    []string
	batchSize int
	log       *logrus.Entry
}

// FileResult counts what happened to one file in a run.
type FileResult struct {
	Path        string
	Reason      string
	Skipped     bool
	Offset      int64
	Size        int64
	Lines       int
	Accepted    int
	Inserted    int
	Deduped     int
	NotJob      int
	NotTerminal int
	Malformed   int
}

type RunResult struct {
	RunID  string
	Files  []FileResult
	Purged int64
}

// Totals sums the per-file counters.
func (r RunResult) Totals() FileResult {
	var t FileResult
	for _, f := range r.Files {
		t.Lines += f.Lines
		t.Accepted += f.Accepted
		t.Inserted += f.Inserted
		t.Deduped += f.Deduped
		t.NotJob += f.NotJob
		t.NotTerminal += f.NotTerminal
		t.Malformed += f.Malformed
		if f.Skipped {
			t.Skipped = true
		}
	}
	return t
}

func NewPipeline(store *Store, opts Options) *Pipeline {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Pipeline{
		store:     store,
		tracker:   NewTracker(store.DB()),
		admins:    opts.Admins,
		batchSize: batch,
		log:       logging.For("ingest"),
	}
}

// Run ingests paths in order and then purges admin usage. The first storage
// error aborts the run; files finished before it keep their progress.
func (p *Pipeline) Run(ctx context.Context, paths []string) (RunResult, error) {
	if p == nil || p.store == nil {
		return RunResult{}, fmt.Errorf("ingest pipeline: store is not configured")
	}
	result := RunResult{RunID: uuid.New().String()}
	log := p.log.WithField("run_id", result.RunID)
	log.WithField("event", "run_start").WithField("files", len(paths)).Info("ingestion run started")

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fr, err := p.IngestFile(ctx, path)
		result.Files = append(result.Files, fr)
		if err != nil {
			log.WithField("event", "file_failed").WithField("path", path).WithError(err).Error("ingestion aborted")
			return result, err
		}
		if fr.Skipped {
			log.WithField("event", "file_skipped").WithField("path", path).Debug("already ingested")
			continue
		}
		log.WithFields(logrus.Fields{
			"event":        "file_done",
			"path":         path,
			"reason":       fr.Reason,
			"lines":        fr.Lines,
			"inserted":     fr.Inserted,
			"deduped":      fr.Deduped,
			"not_job":      fr.NotJob,
			"not_terminal": fr.NotTerminal,
			"malformed":    fr.Malformed,
		}).Info("file ingested")
	}

	purged, err := p.store.PurgeAdminUsage(ctx, p.admins)
	if err != nil {
		log.WithField("event", "purge_failed").WithError(err).Error("admin purge failed")
		return result, err
	}
	result.Purged = purged

	t := result.Totals()
	log.WithFields(logrus.Fields{
		"event":    "run_done",
		"inserted": t.Inserted,
		"deduped":  t.Deduped,
		"purged":   purged,
	}).Info("ingestion run finished")
	return result, nil
}

// IngestFile reads the unread, newline terminated part of one file. Events
// are committed in batches; the file's progress, up to the last complete
// line, is written with the last batch, so a failed pass leaves the previous
// offset in place.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (FileResult, error) {
	fr := FileResult{Path: path}
	dec, err := p.tracker.ShouldIngest(ctx, path)
	if err != nil {
		return fr, err
	}
	fr.Reason, fr.Offset, fr.Size = dec.Reason, dec.Offset, dec.Size
	if !dec.Ingest {
		fr.Skipped = true
		return fr, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fr, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	if dec.Offset > 0 {
		if _, err := f.Seek(dec.Offset, io.SeekStart); err != nil {
			return fr, fmt.Errorf("ingest: seek %s: %w", path, err)
		}
	}

	br := bufio.NewReaderSize(io.LimitReader(f, dec.Size-dec.Offset), readBufferSize)
	var consumed int64
	batch := make([]core.JobEvent, 0, p.batchSize)
	for {
		raw, n, oversized, err := readLine(br, maxLineBytes)
		if errors.Is(err, io.EOF) {
			// An unterminated tail is still being written; the next run reads it whole.
			break
		}
		if err != nil {
			return fr, fmt.Errorf("ingest: read %s: %w", path, err)
		}
		consumed += n
		if oversized {
			fr.Lines++
			fr.Malformed++
			p.log.WithFields(logrus.Fields{
				"event": "line_oversized",
				"path":  path,
				"line":  fr.Lines,
				"bytes": n,
			}).Warn("skipping oversized record")
			continue
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		fr.Lines++
		parsed := parsers.ParseEventLine(line)
		switch parsed.Outcome {
		case parsers.OutcomeAccepted:
			fr.Accepted++
			batch = append(batch, parsed.Event)
		case parsers.OutcomeNotJob:
			fr.NotJob++
		case parsers.OutcomeNotTerminal:
			fr.NotTerminal++
		default:
			fr.Malformed++
			p.log.WithFields(logrus.Fields{
				"event":  "line_malformed",
				"path":   path,
				"line":   fr.Lines,
				"detail": parsed.Detail,
			}).Debug("skipping malformed record")
		}

		if len(batch) >= p.batchSize {
			if err := p.commit(ctx, &fr, batch, nil); err != nil {
				return fr, err
			}
			batch = batch[:0]
		}
	}

	done := dec
	done.Size = dec.Offset + consumed
	if err := p.commit(ctx, &fr, batch, &done); err != nil {
		return fr, err
	}
	return fr, nil
}

// readLine returns the next newline terminated line and the bytes it spans.
// A line longer than max is drained and flagged oversized instead of being
// buffered. A final fragment without a newline comes back with io.EOF.
func readLine(br *bufio.Reader, max int) (line []byte, n int64, oversized bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		n += int64(len(chunk))
		if !oversized {
			if len(line)+len(chunk) > max {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, n, oversized, err
	}
}

// commit writes one batch. When done is set the file's progress goes in the
// same transaction.
func (p *Pipeline) commit(ctx context.Context, fr *FileResult, batch []core.JobEvent, done *Decision) error {
	tx, err := p.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingest: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := p.store.InsertEvents(ctx, tx, batch)
	if err != nil {
		return err
	}
	if done != nil {
		if err := p.tracker.RecordProgressTx(ctx, tx, done.Path, done.Size); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ingest: commit tx: %w", err)
	}
	fr.Inserted += res.Inserted
	fr.Deduped += res.Deduped
	return nil
}
