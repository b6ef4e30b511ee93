package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/directory"
	"github.com/emanehab99/gstar-stats/internal/logging"
)

var log = logging.For("aggregate")

// ErrNoUsage is returned by share computations when the period has no usage.
var ErrNoUsage = errors.New("aggregate: no usage recorded in period")

// Directory is the part of the user directory the engine reads.
type Directory interface {
	Users(ctx context.Context, systemID int) ([]directory.UserInfo, error)
	CountUsers(ctx context.Context, q directory.UserQuery) (int64, error)
	Projects(ctx context.Context, systemID int, prefix string) ([]directory.Project, error)
	ProjectMembers(ctx context.Context, systemID int) ([]directory.ProjectMember, error)
	AstronomersByInstitution(ctx context.Context, systemID int) ([]directory.InstitutionCount, error)
}

type Options struct {
	Period           core.Period
	SystemID         int
	ProjectPrefix    string
	HomeDepartmentID int64

	InstitutionPrecision int
	ProjectPrecision     int
	DemographicPrecision int

	// Admins never count as active users.
	Admins []string
	// ResidualBuckets closes each demographic axis to 100 instead of
	// reporting independent shares.
	ResidualBuckets bool
}

// Engine computes usage shares and user counts for one period. Usage facts
// and directory users are loaded once on first use. An Engine is not safe
// for concurrent use.
type Engine struct {
	source UsageSource
	dir    Directory
	opts   Options

	facts []UsageFact
	users []directory.UserInfo
	total float64
}

func New(source UsageSource, dir Directory, opts Options) *Engine {
	return &Engine{source: source, dir: dir, opts: opts}
}

func (e *Engine) Period() core.Period { return e.opts.Period }

func (e *Engine) loadFacts(ctx context.Context) ([]UsageFact, error) {
	if e.facts != nil {
		return e.facts, nil
	}
	facts, err := e.source.UserUsage(ctx, e.opts.Period)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []UsageFact{}
	}
	e.facts = facts
	e.total = lo.SumBy(facts, func(f UsageFact) float64 { return f.Usage })
	log.WithField("event", "usage_loaded").
		WithField("facts", len(facts)).
		WithField("total", e.total).
		WithField("period", e.opts.Period.Key()).
		Debug("usage facts loaded")
	return facts, nil
}

func (e *Engine) loadUsers(ctx context.Context) ([]directory.UserInfo, error) {
	if e.users != nil {
		return e.users, nil
	}
	users, err := e.dir.Users(ctx, e.opts.SystemID)
	if err != nil {
		return nil, fmt.Errorf("aggregate: load users: %w", err)
	}
	if users == nil {
		users = []directory.UserInfo{}
	}
	e.users = users
	return users, nil
}

// TotalUsage returns the service units recorded in the period.
func (e *Engine) TotalUsage(ctx context.Context) (float64, error) {
	if _, err := e.loadFacts(ctx); err != nil {
		return 0, err
	}
	return e.total, nil
}

func (e *Engine) positiveTotal(ctx context.Context) (float64, error) {
	total, err := e.TotalUsage(ctx)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, ErrNoUsage
	}
	return total, nil
}

func usageBy(facts []UsageFact, key func(UsageFact) string) map[string]float64 {
	out := make(map[string]float64)
	for _, f := range facts {
		out[key(f)] += f.Usage
	}
	return out
}

// ProjectUsagePercent lists every directory project of the system with its
// share of total usage, or core.NoUsage when nothing was charged to it.
func (e *Engine) ProjectUsagePercent(ctx context.Context) ([]core.UsageRow, error) {
	total, err := e.positiveTotal(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := e.dir.Projects(ctx, e.opts.SystemID, e.opts.ProjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("aggregate: project usage: %w", err)
	}
	byAccount := usageBy(e.facts, func(f UsageFact) string { return f.Account })

	rows := make([]core.UsageRow, 0, len(projects))
	for _, p := range projects {
		usage, ok := byAccount[p.Code]
		if !ok {
			rows = append(rows, core.PercentRow(p.Code, core.NoUsage))
			continue
		}
		rows = append(rows, core.PercentRow(p.Code, core.FormatPercent(core.SharePercent(usage, total, e.opts.ProjectPrecision))))
	}
	return rows, nil
}

// InstitutionUsagePercent attributes each user's usage to their resolved
// institution. Institutions without usage are omitted; rows are ordered by
// share, largest first.
func (e *Engine) InstitutionUsagePercent(ctx context.Context) ([]core.UsageRow, error) {
	total, err := e.positiveTotal(ctx)
	if err != nil {
		return nil, err
	}
	users, err := e.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	institution := make(map[string]string, len(users))
	for _, u := range users {
		institution[u.Username] = u.Institution
	}

	byInst := make(map[string]float64)
	for _, f := range e.facts {
		if inst, ok := institution[f.User]; ok {
			byInst[inst] += f.Usage
		}
	}
	names := lo.Filter(lo.Keys(byInst), func(name string, _ int) bool { return byInst[name] > 0 })
	sort.Slice(names, func(i, j int) bool {
		if byInst[names[i]] != byInst[names[j]] {
			return byInst[names[i]] > byInst[names[j]]
		}
		return names[i] < names[j]
	})

	return lo.Map(names, func(name string, _ int) core.UsageRow {
		return core.PercentRow(name, core.FormatPercent(core.SharePercent(byInst[name], total, e.opts.InstitutionPrecision)))
	}), nil
}

// ActiveUsernames returns the sorted distinct users with usage in the period,
// admins excluded.
func (e *Engine) ActiveUsernames(ctx context.Context) ([]string, error) {
	facts, err := e.loadFacts(ctx)
	if err != nil {
		return nil, err
	}
	names := lo.Uniq(lo.Map(facts, func(f UsageFact, _ int) string { return f.User }))
	names = lo.Without(names, e.opts.Admins...)
	sort.Strings(names)
	return names, nil
}

// UsersCount counts users registered on the system that match every filter.
func (e *Engine) UsersCount(ctx context.Context, filters ...directory.Filter) (int64, error) {
	n, err := e.dir.CountUsers(ctx, directory.UserQuery{SystemID: e.opts.SystemID, Filters: filters})
	if err != nil {
		return 0, fmt.Errorf("aggregate: count users: %w", err)
	}
	return n, nil
}

// ActiveUsersCount is UsersCount restricted to users active in the period.
func (e *Engine) ActiveUsersCount(ctx context.Context, filters ...directory.Filter) (int64, error) {
	active, err := e.ActiveUsernames(ctx)
	if err != nil {
		return 0, err
	}
	n, err := e.dir.CountUsers(ctx, directory.UserQuery{
		SystemID:         e.opts.SystemID,
		Filters:          filters,
		Usernames:        active,
		LimitToUsernames: true,
	})
	if err != nil {
		return 0, fmt.Errorf("aggregate: count active users: %w", err)
	}
	return n, nil
}

func (e *Engine) homeFilter() directory.Filter {
	return directory.Eq("department_id", e.opts.HomeDepartmentID)
}

func (e *Engine) HomeAstronomersCount(ctx context.Context) (int64, error) {
	return e.UsersCount(ctx, e.homeFilter())
}

func (e *Engine) ActiveHomeAstronomersCount(ctx context.Context) (int64, error) {
	return e.ActiveUsersCount(ctx, e.homeFilter())
}

// InstitutionAstronomers counts astronomy users per institution.
func (e *Engine) InstitutionAstronomers(ctx context.Context) ([]core.UsageRow, error) {
	counts, err := e.dir.AstronomersByInstitution(ctx, e.opts.SystemID)
	if err != nil {
		return nil, fmt.Errorf("aggregate: institution astronomers: %w", err)
	}
	return lo.Map(counts, func(c directory.InstitutionCount, _ int) core.UsageRow {
		return core.CountRow(c.Institution, c.Users)
	}), nil
}
