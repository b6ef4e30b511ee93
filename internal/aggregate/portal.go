package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
	"github.com/emanehab99/gstar-stats/internal/parsers"
)

// PortalStats reports data portal activity for a period.
type PortalStats interface {
	JobCount(ctx context.Context) (int64, error)
	ActiveUsers(ctx context.Context) (int64, error)
	RegisteredUsers(ctx context.Context) (int64, error)
	DataSize(ctx context.Context) (DataSize, error)
	JobsByDataset(ctx context.Context) ([]DatasetCount, error)
}

// DataSize is the volume of data returned by portal jobs.
type DataSize struct {
	GB      float64
	Records int64
}

// SizeText renders the volume as "<gb> GB" rounded to three digits.
func (d DataSize) SizeText() string {
	return core.FormatDecimal(core.Round(d.GB, 3)) + " GB"
}

// RecordsText renders the record total with thousands separators.
func (d DataSize) RecordsText() string {
	return humanize.Comma(d.Records)
}

// RegisteredUserCounter counts accounts registered on the portal.
type RegisteredUserCounter interface {
	RegisteredUsers(ctx context.Context) (int64, error)
}

// PortalUsers reads the portal's user table.
type PortalUsers struct {
	db     *dbconn.DB
	admins []string
}

func NewPortalUsers(db *dbconn.DB, admins []string) *PortalUsers {
	return &PortalUsers{db: db, admins: admins}
}

func (u *PortalUsers) RegisteredUsers(ctx context.Context) (int64, error) {
	q := `SELECT COUNT(*) FROM tao_taouser`
	var args []any
	if len(u.admins) > 0 {
		q += ` WHERE username NOT IN (` + dbconn.Placeholders(len(u.admins)) + `)`
		args = lo.ToAnySlice(u.admins)
	}
	var n int64
	if err := u.db.QueryRowContext(ctx, u.db.Rebind(q), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("aggregate: count portal users: %w", err)
	}
	return n, nil
}

// PortalDB reads portal jobs from the portal's jobs table. Only the latest
// version of each job inserted during the period counts, and jobs of admin
// users are excluded.
type PortalDB struct {
	db     *dbconn.DB
	users  RegisteredUserCounter
	period core.Period
	admins []string
}

func NewPortalDB(jobs *dbconn.DB, users RegisteredUserCounter, p core.Period, admins []string) *PortalDB {
	return &PortalDB{db: jobs, users: users, period: p, admins: admins}
}

func (s *PortalDB) where() (string, []any) {
	var b strings.Builder
	b.WriteString(` WHERE latestjobversion = ? AND insertdate >= ? AND insertdate < ?`)
	args := []any{true, s.period.Start.UTC(), s.period.End.AddDate(0, 0, 1).UTC()}
	if len(s.admins) > 0 {
		b.WriteString(` AND username NOT IN (` + dbconn.Placeholders(len(s.admins)) + `)`)
		args = append(args, lo.ToAnySlice(s.admins)...)
	}
	return b.String(), args
}

func (s *PortalDB) scalar(ctx context.Context, what, selectExpr string, dest ...any) error {
	where, args := s.where()
	q := s.db.Rebind(`SELECT ` + selectExpr + ` FROM jobs` + where)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(dest...); err != nil {
		return fmt.Errorf("aggregate: portal %s: %w", what, err)
	}
	return nil
}

func (s *PortalDB) JobCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.scalar(ctx, "job count", `COUNT(*)`, &n)
	return n, err
}

func (s *PortalDB) ActiveUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.scalar(ctx, "active users", `COUNT(DISTINCT username)`, &n)
	return n, err
}

func (s *PortalDB) RegisteredUsers(ctx context.Context) (int64, error) {
	if s.users == nil {
		return 0, nil
	}
	return s.users.RegisteredUsers(ctx)
}

func (s *PortalDB) DataSize(ctx context.Context) (DataSize, error) {
	var bytes float64
	var records int64
	if err := s.scalar(ctx, "data size", `COALESCE(SUM(filesize), 0), COALESCE(SUM(recordscount), 0)`, &bytes, &records); err != nil {
		return DataSize{}, err
	}
	return DataSize{GB: bytes / (1024 * 1024 * 1024), Records: records}, nil
}

func (s *PortalDB) JobsByDataset(ctx context.Context) ([]DatasetCount, error) {
	where, args := s.where()
	q := s.db.Rebind(`SELECT COALESCE("database", ''), COUNT(*) FROM jobs` + where + ` GROUP BY "database"`)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate: portal jobs by dataset: %w", err)
	}
	defer rows.Close()

	var counts []DatasetCount
	for rows.Next() {
		var c DatasetCount
		if err := rows.Scan(&c.Name, &c.Jobs); err != nil {
			return nil, fmt.Errorf("aggregate: scan portal dataset: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate: iterate portal datasets: %w", err)
	}
	return JobsByDataset(counts), nil
}

// JobStatusCompleted marks a finished portal job in an extract.
const JobStatusCompleted = "COMPLETED"

// PortalExtract serves portal statistics from job extract files. Only
// completed jobs of non-admin users count. Extracts carry no record counts.
type PortalExtract struct {
	jobs  []parsers.PortalJob
	users RegisteredUserCounter
}

func NewPortalExtract(jobs []parsers.PortalJob, admins []string, users RegisteredUserCounter) *PortalExtract {
	kept := lo.Filter(jobs, func(j parsers.PortalJob, _ int) bool {
		return j.Status == JobStatusCompleted && !lo.Contains(admins, j.Email)
	})
	return &PortalExtract{jobs: kept, users: users}
}

func (s *PortalExtract) JobCount(context.Context) (int64, error) {
	return int64(len(s.jobs)), nil
}

func (s *PortalExtract) ActiveUsers(context.Context) (int64, error) {
	emails := lo.Uniq(lo.Map(s.jobs, func(j parsers.PortalJob, _ int) string { return j.Email }))
	return int64(len(emails)), nil
}

func (s *PortalExtract) RegisteredUsers(ctx context.Context) (int64, error) {
	if s.users == nil {
		return 0, nil
	}
	return s.users.RegisteredUsers(ctx)
}

// DataSize converts the summed output_size column, which extracts report in
// kilobytes, to gigabytes.
func (s *PortalExtract) DataSize(context.Context) (DataSize, error) {
	kb := lo.SumBy(s.jobs, func(j parsers.PortalJob) float64 { return j.OutputSize })
	return DataSize{GB: kb / (1024 * 1024)}, nil
}

func (s *PortalExtract) JobsByDataset(context.Context) ([]DatasetCount, error) {
	counts := lo.CountValuesBy(s.jobs, func(j parsers.PortalJob) string { return j.Database })
	in := make([]DatasetCount, 0, len(counts))
	for name, n := range counts {
		in = append(in, DatasetCount{Name: name, Jobs: int64(n)})
	}
	return JobsByDataset(in), nil
}
