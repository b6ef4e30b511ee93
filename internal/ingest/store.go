package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
)

const (
	eventTable     = "job_event"
	processedTable = "processed_log_file"
)

var eventColumns = []string{
	"event_id", "event_time", "event_type", "nodes", "cpus", "username", "group_name",
	"account", "job_id", "submit_time", "start_time", "end_time", "eligible_time", "queue",
	"reqwall", "features", "memory_mb", "partition_name", "rsv", "qos_requested",
	"qos_delivered", "service_units",
}

// Store persists job events and per-file ingestion progress.
type Store struct {
	db  *dbconn.DB
	now func() time.Time
}

func NewStore(db *dbconn.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *dbconn.DB { return s.db }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	d := s.db.Dialect
	key := d.ColumnType(dbconn.KeyColumn)
	text := d.ColumnType(dbconn.TextColumn)
	ts := d.ColumnType(dbconn.TimeColumn)
	integer := d.ColumnType(dbconn.IntColumn)
	big := d.ColumnType(dbconn.BigIntColumn)
	float := d.ColumnType(dbconn.FloatColumn)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			event_id %s PRIMARY KEY,
			event_time %s NOT NULL,
			event_type %s NOT NULL,
			nodes %s NOT NULL,
			cpus %s NOT NULL,
			username %s NOT NULL,
			group_name %s,
			account %s,
			job_id %s NOT NULL,
			submit_time %s,
			start_time %s,
			end_time %s,
			eligible_time %s,
			queue %s,
			reqwall %s,
			features %s,
			memory_mb %s,
			partition_name %s,
			rsv %s,
			qos_requested %s,
			qos_delivered %s,
			service_units %s NOT NULL
		)`, eventTable, key, ts, text, integer, integer, key, text, text, text,
			ts, ts, ts, ts, text, integer, text, integer, text, text, text, text, float),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name %s PRIMARY KEY,
			size %s NOT NULL
		)`, processedTable, key, big),
		d.CreateIndex("idx_job_event_time", eventTable, "event_time"),
		d.CreateIndex("idx_job_event_user", eventTable, "username"),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if dbconn.IsDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("ingest: init schema: %w", err)
		}
	}
	return nil
}

type InsertResult struct {
	Inserted int
	Deduped  int
}

func (s *Store) insertEventSQL() string {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		eventTable, strings.Join(eventColumns, ", "), dbconn.Placeholders(len(eventColumns)))
	if s.db.Dialect == dbconn.Postgres {
		// A failed statement poisons a Postgres transaction, so conflicts are
		// resolved by the server and detected through the affected row count.
		q += " ON CONFLICT (event_id) DO NOTHING"
	}
	return s.db.Rebind(q)
}

// InsertEvents writes events inside tx. An event whose id is already stored
// counts as deduped; any other failure aborts the batch.
func (s *Store) InsertEvents(ctx context.Context, tx *sql.Tx, events []core.JobEvent) (InsertResult, error) {
	var res InsertResult
	if len(events) == 0 {
		return res, nil
	}
	stmt, err := tx.PrepareContext(ctx, s.insertEventSQL())
	if err != nil {
		return res, fmt.Errorf("ingest: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		out, err := stmt.ExecContext(ctx,
			ev.EventID,
			ev.EventTime.UTC(),
			ev.EventType,
			ev.Nodes,
			ev.CPUs,
			ev.User,
			ev.Group,
			ev.Account,
			ev.JobID,
			ev.Submit.UTC(),
			ev.Start.UTC(),
			ev.End.UTC(),
			ev.Eligible.UTC(),
			ev.Queue,
			ev.ReqWall,
			ev.Features,
			ev.MemoryMB,
			ev.Partition,
			ev.Reservation,
			ev.QOSRequested,
			ev.QOSDelivered,
			ev.ServiceUnits,
		)
		if err != nil {
			if dbconn.IsDuplicateKey(err) {
				res.Deduped++
				continue
			}
			return res, fmt.Errorf("ingest: insert event %s: %w", ev.EventID, err)
		}
		if n, err := out.RowsAffected(); err == nil && n == 0 {
			res.Deduped++
			continue
		}
		res.Inserted++
	}
	return res, nil
}

// CountEvents returns the number of stored job events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+eventTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("ingest: count events: %w", err)
	}
	return n, nil
}

// loadEvent reads a stored event back by id.
func (s *Store) loadEvent(ctx context.Context, eventID string) (core.JobEvent, error) {
	q := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE event_id = ?`, strings.Join(eventColumns, ", "), eventTable))
	var ev core.JobEvent
	err := s.db.QueryRowContext(ctx, q, eventID).Scan(
		&ev.EventID, &ev.EventTime, &ev.EventType, &ev.Nodes, &ev.CPUs, &ev.User, &ev.Group,
		&ev.Account, &ev.JobID, &ev.Submit, &ev.Start, &ev.End, &ev.Eligible, &ev.Queue,
		&ev.ReqWall, &ev.Features, &ev.MemoryMB, &ev.Partition, &ev.Reservation,
		&ev.QOSRequested, &ev.QOSDelivered, &ev.ServiceUnits,
	)
	if err != nil {
		return core.JobEvent{}, fmt.Errorf("ingest: load event %s: %w", eventID, err)
	}
	return ev, nil
}
