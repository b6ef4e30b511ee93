package aggregate

import (
	"context"

	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/directory"
)

// Demographic axis names.
const (
	AxisGender    = "gender"
	AxisStudent   = "student"
	AxisAstronomy = "astronomy"
	AxisNational  = "national"
)

// DemographicAxis is the usage share of each group along one axis. Groups
// keep a fixed order.
type DemographicAxis struct {
	Name string          `json:"name"`
	Rows []core.UsageRow `json:"rows"`
}

type axisDef struct {
	name   string
	groups []string
	// group returns the group index of u, or -1 when u is outside the axis.
	group func(u directory.UserInfo) int
}

var demographicAxes = []axisDef{
	{
		name:   AxisGender,
		groups: []string{core.GenderMale.String(), core.GenderFemale.String()},
		group: func(u directory.UserInfo) int {
			switch u.Gender {
			case core.GenderMale:
				return 0
			case core.GenderFemale:
				return 1
			}
			return -1
		},
	},
	{
		name:   AxisStudent,
		groups: []string{"Student", "Staff"},
		group:  func(u directory.UserInfo) int { return boolGroup(u.IsStudent) },
	},
	{
		name:   AxisAstronomy,
		groups: []string{"Astronomy", "Non-astronomy"},
		group:  func(u directory.UserInfo) int { return boolGroup(u.IsAstronomy) },
	},
	{
		name:   AxisNational,
		groups: []string{"National Astronomy", "Other"},
		group:  func(u directory.UserInfo) int { return boolGroup(u.National()) },
	},
}

func boolGroup(b bool) int {
	if b {
		return 0
	}
	return 1
}

// DemographicUsage splits usage along the gender, student, astronomy and
// national axes. Each group reports its own share of total usage, so an axis
// sums to less than 100 when some usage belongs to users outside it or
// outside the directory. With ResidualBuckets the first group is truncated
// to a whole percentage and the remaining groups take what is left of 100.
func (e *Engine) DemographicUsage(ctx context.Context) ([]DemographicAxis, error) {
	total, err := e.positiveTotal(ctx)
	if err != nil {
		return nil, err
	}
	users, err := e.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	byUser := usageBy(e.facts, func(f UsageFact) string { return f.User })

	axes := make([]DemographicAxis, 0, len(demographicAxes))
	for _, def := range demographicAxes {
		sums := make([]float64, len(def.groups))
		for _, u := range users {
			if g := def.group(u); g >= 0 {
				sums[g] += byUser[u.Username]
			}
		}
		axes = append(axes, DemographicAxis{Name: def.name, Rows: e.axisRows(def.groups, sums, total)})
	}
	return axes, nil
}

func (e *Engine) axisRows(groups []string, sums []float64, total float64) []core.UsageRow {
	rows := make([]core.UsageRow, len(groups))
	if !e.opts.ResidualBuckets {
		for i, g := range groups {
			rows[i] = core.PercentRow(g, core.FormatPercent(core.SharePercent(sums[i], total, e.opts.DemographicPrecision)))
		}
		return rows
	}
	running := 0
	for i, g := range groups {
		var v int
		if i == 0 {
			v = int(sums[i] * 100 / total)
		} else {
			v = 100 - running
		}
		running += v
		rows[i] = core.PercentRow(g, core.FormatPercent(float64(v)))
	}
	return rows
}
