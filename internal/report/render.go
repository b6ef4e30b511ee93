package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/emanehab99/gstar-stats/internal/core"
)

const maxLabelWidth = 60

var (
	colorTitle  = lipgloss.Color("#89B4FA")
	colorHeader = lipgloss.Color("#B4BEFE")
	colorBorder = lipgloss.Color("#585B70")
	colorDim    = lipgloss.Color("#A6ADC8")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHeader).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	metaStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

// RenderText writes the report as one bordered table per section.
func RenderText(w io.Writer, rep core.Report) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Usage report " + rep.Period.Label()))
	b.WriteString("\n")
	if !rep.GeneratedAt.IsZero() {
		b.WriteString(metaStyle.Render("generated " + rep.GeneratedAt.Format("2006-01-02 15:04 MST")))
		b.WriteString("\n")
	}
	for _, s := range rep.Sections {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(s.Title))
		b.WriteString("\n")
		b.WriteString(renderSection(s))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}

func renderSection(s core.Section) string {
	if len(s.Rows) == 0 {
		return metaStyle.Render("  no data")
	}
	rows := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		cells := r.Cells()
		cells[0] = ansi.Truncate(cells[0], maxLabelWidth, "…")
		rows = append(rows, cells)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			default:
				return valueStyle
			}
		})
	if len(s.Header) > 0 {
		t = t.Headers(s.Header...)
	}
	return t.String()
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, rep core.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: write json: %w", err)
	}
	return nil
}
