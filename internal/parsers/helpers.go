package parsers

import (
	"strconv"
	"strings"
	"time"
)

// blankMarker is how the scheduler writes an empty string field.
const blankMarker = "-"

// StatValue returns the token, or "" when the scheduler marked it blank.
func StatValue(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == blankMarker {
		return ""
	}
	return tok
}

// ParseEpoch parses whole epoch seconds into a UTC time.
func ParseEpoch(tok string) (time.Time, bool) {
	n, ok := ParseInt(tok)
	if !ok || n < 0 {
		return time.Time{}, false
	}
	return time.Unix(n, 0).UTC(), true
}

func ParseInt(tok string) (int64, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ParseFloat(tok string) (float64, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseMegabytes reads the leading integer of a "<n>M" memory token.
func parseMegabytes(tok string) (int, bool) {
	tok = StatValue(tok)
	if i := strings.IndexByte(tok, 'M'); i >= 0 {
		tok = tok[:i]
	}
	n, ok := ParseInt(tok)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// splitQOS splits "requested:delivered". A lone blank marker blanks both.
func splitQOS(tok string) (requested, delivered string) {
	tok = strings.TrimSpace(tok)
	if tok == "" || tok == blankMarker {
		return "", ""
	}
	req, del, found := strings.Cut(tok, ":")
	if !found {
		return StatValue(req), ""
	}
	return StatValue(req), StatValue(del)
}

// normalizeQueue strips the "[name:1]" class decoration.
func normalizeQueue(tok string) string {
	q := StatValue(tok)
	q = strings.ReplaceAll(q, "[", "")
	q = strings.ReplaceAll(q, ":1]", "")
	return q
}
