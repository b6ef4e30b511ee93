package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogPrefix is the file name prefix of scheduler event logs.
const LogPrefix = "events"

// Pattern returns the glob for event logs under root, optionally narrowed to
// names mentioning month and year (e.g. "Mar", "2017").
func Pattern(root, month, year string) string {
	name := LogPrefix + "*"
	month, year = strings.TrimSpace(month), strings.TrimSpace(year)
	if month != "" || year != "" {
		name += month + "*" + year + "*"
	}
	return filepath.Join(root, name)
}

// Discover lists event logs under root in lexical order.
func Discover(root, month, year string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("ingest: stats path is empty")
	}
	matches, err := filepath.Glob(Pattern(root, month, year))
	if err != nil {
		return nil, fmt.Errorf("ingest: glob: %w", err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

// IsEventLog reports whether a file name looks like a scheduler event log.
func IsEventLog(path string) bool {
	return strings.HasPrefix(filepath.Base(path), LogPrefix)
}
