package core

import "time"

// TerminalEventType marks the scheduler record written when a job finishes.
const TerminalEventType = "JOBEND"

// JobEvent is one cluster job's terminal state as parsed from a scheduler event log.
type JobEvent struct {
	EventID   string    `json:"event_id"`
	EventTime time.Time `json:"event_time"`
	EventType string    `json:"event_type"`

	Nodes int `json:"nodes"`
	CPUs  int `json:"cpus"`

	User    string `json:"user"`
	Group   string `json:"group"`
	Account string `json:"account"`

	JobID    string    `json:"job_id"`
	Submit   time.Time `json:"submit_time"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	Eligible time.Time `json:"eligible_time"`

	Queue        string `json:"queue"`
	ReqWall      int    `json:"reqwall"`
	MemoryMB     int    `json:"memory_mb"`
	Partition    string `json:"partition"`
	Features     string `json:"features"`
	Reservation  string `json:"reservation"`
	QOSRequested string `json:"qos_requested"`
	QOSDelivered string `json:"qos_delivered"`

	ServiceUnits float64 `json:"service_units"`
}

// ServiceUnits converts elapsed wall time on cpus into CPU hours.
func ServiceUnits(start, end time.Time, cpus int) float64 {
	return end.Sub(start).Seconds() * float64(cpus) / 3600
}

// ProcessedFile records how many bytes of a log file have been ingested.
type ProcessedFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type Gender int

const (
	GenderMale   Gender = 0
	GenderFemale Gender = 1
	GenderUnset  Gender = 2
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	default:
		return "None"
	}
}

// UsageRow is the uniform tuple every aggregation result is reported as.
// Percent is pre-formatted ("25.0%" or "-"); Counts are plain integers; Text
// carries already formatted scalar values such as data sizes.
type UsageRow struct {
	Label   string  `json:"label"`
	Percent string  `json:"percent,omitempty"`
	Counts  []int64 `json:"counts,omitempty"`
	Text    string  `json:"text,omitempty"`
}

func PercentRow(label, percent string) UsageRow {
	return UsageRow{Label: label, Percent: percent}
}

func CountRow(label string, counts ...int64) UsageRow {
	return UsageRow{Label: label, Counts: counts}
}

func TextRow(label, text string) UsageRow {
	return UsageRow{Label: label, Text: text}
}

// Cells returns the row as display strings, label first.
func (r UsageRow) Cells() []string {
	cells := []string{r.Label}
	if r.Percent != "" {
		cells = append(cells, r.Percent)
	}
	for _, c := range r.Counts {
		cells = append(cells, formatInt(c))
	}
	if r.Percent == "" && len(r.Counts) == 0 {
		cells = append(cells, r.Text)
	}
	return cells
}
