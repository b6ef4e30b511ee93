package aggregate

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/directory"
)

// Collaboration summarises how projects span institutions.
type Collaboration struct {
	Projects                int     `json:"projects"`
	International           int     `json:"international"`
	MultipleNational        int     `json:"multiple_national"`
	InternationalPercent    float64 `json:"international_percent"`
	MultipleNationalPercent float64 `json:"multiple_national_percent"`
}

// Rows renders the summary as report rows.
func (c Collaboration) Rows() []core.UsageRow {
	return []core.UsageRow{
		core.CountRow("Projects with members", int64(c.Projects)),
		{Label: "Projects with Australian and international institutions", Percent: core.FormatPercent(c.InternationalPercent), Counts: []int64{int64(c.International)}},
		{Label: "Projects with multiple Australian institutions", Percent: core.FormatPercent(c.MultipleNationalPercent), Counts: []int64{int64(c.MultipleNational)}},
	}
}

// CollaborationStats counts projects whose members come from more than one
// country, and projects whose national members come from more than one
// institution. Members unknown to the directory carry no affiliation.
func (e *Engine) CollaborationStats(ctx context.Context) (Collaboration, error) {
	members, err := e.dir.ProjectMembers(ctx, e.opts.SystemID)
	if err != nil {
		return Collaboration{}, fmt.Errorf("aggregate: collaboration: %w", err)
	}
	users, err := e.loadUsers(ctx)
	if err != nil {
		return Collaboration{}, err
	}
	byName := lo.KeyBy(users, func(u directory.UserInfo) string { return u.Username })
	byProject := lo.GroupBy(members, func(m directory.ProjectMember) string { return m.ProjectCode })

	var c Collaboration
	c.Projects = len(byProject)
	for _, ms := range byProject {
		countries := make(map[string]struct{})
		national := make(map[string]struct{})
		for _, m := range ms {
			u, ok := byName[m.Username]
			if !ok {
				continue
			}
			countries[u.Country] = struct{}{}
			if u.National() {
				national[u.Institution] = struct{}{}
			}
		}
		if len(countries) > 1 {
			c.International++
		}
		if len(national) > 1 {
			c.MultipleNational++
		}
	}
	if c.Projects > 0 {
		c.InternationalPercent = core.SharePercent(float64(c.International), float64(c.Projects), 2)
		c.MultipleNationalPercent = core.SharePercent(float64(c.MultipleNational), float64(c.Projects), 2)
	}
	return c, nil
}
