package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// UtilisationRow is one line of a per-user, per-account cluster utilisation
// extract: Cluster|Login|Name|Account|Used|Energy.
type UtilisationRow struct {
	Cluster string
	Login   string
	Name    string
	Account string
	Used    float64
	Energy  float64
}

const utilisationFields = 6

// ParseUtilisation reads a pipe delimited utilisation extract. Lines without
// six fields or without a numeric Used column (headers, banners, separators)
// are skipped.
func ParseUtilisation(r io.Reader) ([]UtilisationRow, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows []UtilisationRow
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
			return rows, fmt.Errorf("parsers: reading utilisation extract: %w", err)
		}
		if len(rec) < utilisationFields {
			continue
		}
		used, ok := ParseFloat(rec[4])
		if !ok {
			continue
		}
		energy, _ := ParseFloat(rec[5])
		rows = append(rows, UtilisationRow{
			Cluster: strings.TrimSpace(rec[0]),
			Login:   strings.TrimSpace(rec[1]),
			Name:    strings.TrimSpace(rec[2]),
			Account: strings.TrimSpace(rec[3]),
			Used:    used,
			Energy:  energy,
		})
	}
	return rows, nil
}
