package core

import (
	"math"
	"strconv"
	"strings"
)

// NoUsage is shown for a listed group that has no recorded usage.
const NoUsage = "-"

// Round rounds v half away from zero to the given number of decimal digits.
func Round(v float64, digits int) float64 {
	if digits < 0 {
		digits = 0
	}
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// SharePercent returns part as a percentage of total rounded to digits.
// A non-positive total yields zero.
func SharePercent(part, total float64, digits int) float64 {
	if total <= 0 {
		return 0
	}
	return Round(part*100.0/total, digits)
}

// FormatDecimal renders v with the shortest representation that round-trips,
// always keeping at least one fractional digit (25 -> "25.0", 12.345 -> "12.345").
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// FormatPercent renders an already rounded percentage as "<value>%".
func FormatPercent(v float64) string {
	return FormatDecimal(v) + "%"
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
