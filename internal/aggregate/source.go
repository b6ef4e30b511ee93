package aggregate

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
	"github.com/emanehab99/gstar-stats/internal/parsers"
)

// UsageFact is the service units one user charged to one account.
type UsageFact struct {
	User    string
	Account string
	Usage   float64
}

// UsageSource yields per (user, account) usage for a period.
type UsageSource interface {
	UserUsage(ctx context.Context, p core.Period) ([]UsageFact, error)
}

// EventSource reads usage from the job event store.
type EventSource struct {
	db *dbconn.DB
}

func NewEventSource(db *dbconn.DB) *EventSource {
	return &EventSource{db: db}
}

func (s *EventSource) UserUsage(ctx context.Context, p core.Period) ([]UsageFact, error) {
	q := s.db.Rebind(`
		SELECT username, COALESCE(account, ''), SUM(service_units)
		FROM job_event
		WHERE event_type = ? AND event_time >= ? AND event_time < ?
		GROUP BY username, account
		ORDER BY username, account`)

	rows, err := s.db.QueryContext(ctx, q, core.TerminalEventType, p.Start.UTC(), p.End.AddDate(0, 0, 1).UTC())
	if err != nil {
		return nil, fmt.Errorf("aggregate: query event usage: %w", err)
	}
	defer rows.Close()

	var facts []UsageFact
	for rows.Next() {
		var f UsageFact
		if err := rows.Scan(&f.User, &f.Account, &f.Usage); err != nil {
			return nil, fmt.Errorf("aggregate: scan event usage: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate: iterate event usage: %w", err)
	}
	return facts, nil
}

// ExtractSource serves usage from a utilisation extract that already covers
// the reporting period. Rows charged to a discarded account never count.
type ExtractSource struct {
	rows    []parsers.UtilisationRow
	discard []string
}

func NewExtractSource(rows []parsers.UtilisationRow, discardAccounts []string) *ExtractSource {
	return &ExtractSource{rows: rows, discard: discardAccounts}
}

func (s *ExtractSource) UserUsage(_ context.Context, _ core.Period) ([]UsageFact, error) {
	kept := lo.Reject(s.rows, func(r parsers.UtilisationRow, _ int) bool {
		return lo.Contains(s.discard, r.Account)
	})
	return lo.Map(kept, func(r parsers.UtilisationRow, _ int) UsageFact {
		return UsageFact{User: r.Login, Account: r.Account, Usage: r.Used}
	}), nil
}
