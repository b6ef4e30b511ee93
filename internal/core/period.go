package core

import (
	"fmt"
	"time"
)

// Quarter is a financial-year reporting quarter. Q1 starts in July.
type Quarter int

const (
	Q1 Quarter = 1 // Jul - Sep
	Q2 Quarter = 2 // Oct - Dec
	Q3 Quarter = 3 // Jan - Mar
	Q4 Quarter = 4 // Apr - Jun
)

var ValidQuarters = []Quarter{Q1, Q2, Q3, Q4}

// StartMonth returns the first calendar month of the quarter.
func (q Quarter) StartMonth() time.Month {
	switch q {
	case Q1:
		return time.July
	case Q2:
		return time.October
	case Q3:
		return time.January
	default:
		return time.April
	}
}

func (q Quarter) Valid() bool {
	return q >= Q1 && q <= Q4
}

// QuarterOf returns the financial-year quarter a calendar month falls in.
func QuarterOf(m time.Month) Quarter {
	switch {
	case m >= time.July && m <= time.September:
		return Q1
	case m >= time.October:
		return Q2
	case m <= time.March:
		return Q3
	default:
		return Q4
	}
}

// Period is a closed date range [Start, End] over which usage is aggregated.
type Period struct {
	Quarter Quarter   `json:"quarter,omitempty"`
	Year    int       `json:"year,omitempty"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// QuarterPeriod builds the period for a quarter of the given calendar year.
func QuarterPeriod(q Quarter, year int) (Period, error) {
	if !q.Valid() {
		return Period{}, fmt.Errorf("invalid quarter %d (want 1-4)", q)
	}
	if year < 1970 || year > 9999 {
		return Period{}, fmt.Errorf("invalid year %d", year)
	}
	start := time.Date(year, q.StartMonth(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return Period{Quarter: q, Year: year, Start: start, End: end}, nil
}

// LastCompletedQuarter returns the most recent quarter that ended before now.
func LastCompletedQuarter(now time.Time) Period {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := current.AddDate(0, -3, 0)
	q := QuarterOf(prev.Month())
	p, _ := QuarterPeriod(q, prev.Year())
	return p
}

// NewPeriod builds an arbitrary date range; dates are truncated to days.
func NewPeriod(start, end time.Time) (Period, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return Period{}, fmt.Errorf("period end %s is before start %s", e.Format(DateLayout), s.Format(DateLayout))
	}
	return Period{Start: s, End: e}, nil
}

const DateLayout = "2006-01-02"

// StartDate and EndDate return the bounds formatted for SQL DATE() comparisons.
func (p Period) StartDate() string { return p.Start.Format(DateLayout) }
func (p Period) EndDate() string   { return p.End.Format(DateLayout) }

func (p Period) Label() string {
	rng := p.Start.Format("02/01/2006") + " to " + p.End.Format("02/01/2006")
	if p.Quarter.Valid() {
		return fmt.Sprintf("Q%d %d (%s)", p.Quarter, p.Year, rng)
	}
	return rng
}

// Key identifies the period in caches and URLs.
func (p Period) Key() string {
	return p.StartDate() + "_" + p.EndDate()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
