package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emanehab99/gstar-stats/internal/aggregate"
	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/directory"
	"github.com/emanehab99/gstar-stats/internal/logging"
)

var log = logging.For("report")

// Section ids in report order.
const (
	SectionInstitutionUsage       = "institution_usage"
	SectionAccountHolders         = "account_holders"
	SectionInstitutionAstronomers = "institution_astronomers"
	SectionProjectUsage           = "project_usage"
	SectionDemographicUsage       = "demographic_usage"
	SectionCollaboration          = "collaboration"
	SectionPortalUsage            = "portal_usage"
	SectionDatasetJobs            = "dataset_jobs"
	SectionPortalLocations        = "portal_locations"
)

// UsageEngine is the aggregation the assembler reads from.
type UsageEngine interface {
	Period() core.Period
	InstitutionUsagePercent(ctx context.Context) ([]core.UsageRow, error)
	ProjectUsagePercent(ctx context.Context) ([]core.UsageRow, error)
	DemographicUsage(ctx context.Context) ([]aggregate.DemographicAxis, error)
	UsersCount(ctx context.Context, filters ...directory.Filter) (int64, error)
	ActiveUsersCount(ctx context.Context, filters ...directory.Filter) (int64, error)
	HomeAstronomersCount(ctx context.Context) (int64, error)
	ActiveHomeAstronomersCount(ctx context.Context) (int64, error)
	InstitutionAstronomers(ctx context.Context) ([]core.UsageRow, error)
	CollaborationStats(ctx context.Context) (aggregate.Collaboration, error)
}

type Options struct {
	// HomeLabel names the home department row of the account holder table.
	HomeLabel string
}

// Assembler orders aggregation results into report sections. Portal
// sections are only produced when a portal source is set.
type Assembler struct {
	engine UsageEngine
	portal aggregate.PortalStats
	opts   Options
	now    func() time.Time
}

func NewAssembler(engine UsageEngine, portal aggregate.PortalStats, opts Options) *Assembler {
	if opts.HomeLabel == "" {
		opts.HomeLabel = "Swinburne"
	}
	return &Assembler{engine: engine, portal: portal, opts: opts, now: time.Now}
}

// shares tolerates a period without usage by reporting no rows.
func shares(rows []core.UsageRow, err error) ([]core.UsageRow, error) {
	if errors.Is(err, aggregate.ErrNoUsage) {
		return []core.UsageRow{}, nil
	}
	return rows, err
}

func (a *Assembler) InstitutionUsage(ctx context.Context) ([]core.UsageRow, error) {
	return shares(a.engine.InstitutionUsagePercent(ctx))
}

func (a *Assembler) ProjectUsage(ctx context.Context) ([]core.UsageRow, error) {
	return shares(a.engine.ProjectUsagePercent(ctx))
}

func (a *Assembler) InstitutionAstronomers(ctx context.Context) ([]core.UsageRow, error) {
	return a.engine.InstitutionAstronomers(ctx)
}

// AccountHolders returns astronomy account holders as (label, total, active)
// rows.
func (a *Assembler) AccountHolders(ctx context.Context) ([]core.UsageRow, error) {
	astro := directory.Eq("is_astronomy", true)
	groups := []struct {
		label   string
		filters []directory.Filter
	}{
		{"All", []directory.Filter{astro}},
		{"Male", []directory.Filter{astro, directory.Eq("gender", int(core.GenderMale))}},
		{"Female", []directory.Filter{astro, directory.Eq("gender", int(core.GenderFemale))}},
		{"PhD Student", []directory.Filter{astro, directory.Eq("is_student", true)}},
	}
	rows := make([]core.UsageRow, 0, len(groups)+1)
	for _, g := range groups {
		total, err := a.engine.UsersCount(ctx, g.filters...)
		if err != nil {
			return nil, err
		}
		active, err := a.engine.ActiveUsersCount(ctx, g.filters...)
		if err != nil {
			return nil, err
		}
		rows = append(rows, core.CountRow(g.label, total, active))
	}
	total, err := a.engine.HomeAstronomersCount(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.engine.ActiveHomeAstronomersCount(ctx)
	if err != nil {
		return nil, err
	}
	return append(rows, core.CountRow(a.opts.HomeLabel, total, active)), nil
}

// DemographicUsage flattens every axis into consecutive group rows.
func (a *Assembler) DemographicUsage(ctx context.Context) ([]core.UsageRow, error) {
	axes, err := a.engine.DemographicUsage(ctx)
	if errors.Is(err, aggregate.ErrNoUsage) {
		return []core.UsageRow{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []core.UsageRow
	for _, axis := range axes {
		rows = append(rows, axis.Rows...)
	}
	return rows, nil
}

func (a *Assembler) Collaboration(ctx context.Context) ([]core.UsageRow, error) {
	c, err := a.engine.CollaborationStats(ctx)
	if err != nil {
		return nil, err
	}
	return c.Rows(), nil
}

// PortalUsage returns the general portal statistics. Analytics rows are
// left empty.
func (a *Assembler) PortalUsage(ctx context.Context) ([]core.UsageRow, error) {
	if a.portal == nil {
		return nil, nil
	}
	jobs, err := a.portal.JobCount(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.portal.ActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	size, err := a.portal.DataSize(ctx)
	if err != nil {
		return nil, err
	}
	registered, err := a.portal.RegisteredUsers(ctx)
	if err != nil {
		return nil, err
	}
	return []core.UsageRow{
		core.CountRow("Number of jobs", jobs),
		core.CountRow("Number of active users", active),
		core.TextRow("Total records returned", size.RecordsText()),
		core.TextRow("Total data-size returned", size.SizeText()),
		core.CountRow("Registered users", registered),
		core.TextRow("Page views (Google analytics)", ""),
		core.TextRow("Unique users (Google analytics)", ""),
	}, nil
}

func (a *Assembler) DatasetJobCounts(ctx context.Context) ([]core.UsageRow, error) {
	if a.portal == nil {
		return nil, nil
	}
	counts, err := a.portal.JobsByDataset(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.DatasetRows(counts), nil
}

// PortalLocations returns the location rows, which have no data source.
func (a *Assembler) PortalLocations(context.Context) ([]core.UsageRow, error) {
	return []core.UsageRow{
		core.TextRow("Australia", ""),
		core.TextRow("USA", ""),
	}, nil
}

type sectionSpec struct {
	id     string
	title  string
	header []string
	rows   func(context.Context) ([]core.UsageRow, error)
	portal bool
}

func (a *Assembler) sections() []sectionSpec {
	rng := periodRange(a.engine.Period())
	return []sectionSpec{
		{SectionInstitutionUsage, "Usage by Institution", []string{"Institution", "Usage"}, a.InstitutionUsage, false},
		{SectionAccountHolders, "Astronomy account holders (total/active for quarter)", []string{"", "Total", "Active"}, a.AccountHolders, false},
		{SectionInstitutionAstronomers, "Institutions other than " + a.opts.HomeLabel + " with astronomy account holders", []string{"Institution", "No of Users"}, a.InstitutionAstronomers, false},
		{SectionProjectUsage, "Share of CPU hours usage by project", []string{"Project", "Percentage of Total Usage"}, a.ProjectUsage, false},
		{SectionDemographicUsage, "Usage by Demographic", nil, a.DemographicUsage, false},
		{SectionCollaboration, "Project collaboration", nil, a.Collaboration, false},
		{SectionPortalUsage, "General TAO Usage (total for " + rng + ")", nil, a.PortalUsage, true},
		{SectionDatasetJobs, "General Data access breakdown per database (" + rng + ")", nil, a.DatasetJobCounts, true},
		{SectionPortalLocations, "TAO site access by location from Google analytics (" + rng + ")", nil, a.PortalLocations, true},
	}
}

func periodRange(p core.Period) string {
	return p.Start.Format("02/01/2006") + " to " + p.End.Format("02/01/2006")
}

// Assemble builds every section in report order.
func (a *Assembler) Assemble(ctx context.Context) (core.Report, error) {
	rep := core.Report{Period: a.engine.Period(), GeneratedAt: a.now().UTC()}
	for _, s := range a.sections() {
		if s.portal && a.portal == nil {
			continue
		}
		rows, err := s.rows(ctx)
		if err != nil {
			return core.Report{}, fmt.Errorf("report: %s: %w", s.id, err)
		}
		if rows == nil {
			rows = []core.UsageRow{}
		}
		rep.Sections = append(rep.Sections, core.Section{ID: s.id, Title: s.title, Header: s.header, Rows: rows})
		log.WithField("event", "section_done").WithField("section", s.id).WithField("rows", len(rows)).Debug("section assembled")
	}
	return rep, nil
}
