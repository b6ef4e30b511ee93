package ingest

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/emanehab99/gstar-stats/internal/dbconn"
)

// PurgeAdminUsage deletes every stored event owned by one of admins and
// returns how many rows went. An empty list is a no-op.
func (s *Store) PurgeAdminUsage(ctx context.Context, admins []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	admins = lo.Uniq(lo.Compact(admins))
	if len(admins) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ingest: purge begin tx: %w", err)
	}
	defer tx.Rollback()

	q := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE username IN (%s)`, eventTable, dbconn.Placeholders(len(admins))))
	res, err := tx.ExecContext(ctx, q, lo.ToAnySlice(admins)...)
	if err != nil {
		return 0, fmt.Errorf("ingest: purge admin usage: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ingest: purge commit tx: %w", err)
	}
	return removed, nil
}
