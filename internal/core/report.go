package core

import "time"

// Section is one titled table of the quarterly report.
type Section struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Header []string   `json:"header,omitempty"`
	Rows   []UsageRow `json:"rows"`
}

// Report is the assembled, render-ready output for one period.
type Report struct {
	Period      Period    `json:"period"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Section returns the section with the given id.
func (r Report) Section(id string) (Section, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}
