package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PortalJob is one row of a portal job extract.
type PortalJob struct {
	Status     string
	Email      string
	OutputSize float64
	Database   string
}

// Required header columns of a portal job extract.
const (
	PortalColStatus     = "Status"
	PortalColEmail      = "email"
	PortalColOutputSize = "output_size"
	PortalColDatabase   = "database"
)

// ParsePortalJobs reads a tab delimited portal job extract. The first
// non-empty record is the header and must name every required column; other
// columns are ignored. Rows too short to reach a required column are skipped.
func ParsePortalJobs(r io.Reader) ([]PortalJob, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		cols   map[string]int
		jobs   []PortalJob
		maxCol int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return jobs, fmt.Errorf("parsers: reading portal extract: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		if cols == nil {
			cols, maxCol, err = portalHeader(rec)
			if err != nil {
				return nil, err
			}
			continue
		}
		if len(rec) <= maxCol {
			continue
		}
		size, _ := ParseFloat(rec[cols[PortalColOutputSize]])
		jobs = append(jobs, PortalJob{
			Status:     strings.TrimSpace(rec[cols[PortalColStatus]]),
			Email:      strings.TrimSpace(rec[cols[PortalColEmail]]),
			OutputSize: size,
			Database:   strings.TrimSpace(rec[cols[PortalColDatabase]]),
		})
	}
	if cols == nil {
		return nil, fmt.Errorf("parsers: portal extract has no header")
	}
	return jobs, nil
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func portalHeader(fields []string) (map[string]int, int, error) {
	cols := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	maxCol := 0
	for _, want := range []string{PortalColStatus, PortalColEmail, PortalColOutputSize, PortalColDatabase} {
		i, ok := cols[want]
		if !ok {
			return nil, 0, fmt.Errorf("parsers: portal extract header missing column %q", want)
		}
		if i > maxCol {
			maxCol = i
		}
	}
	return cols, maxCol, nil
}
