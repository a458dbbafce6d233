package provider

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"portfoliotracker/internal/clock"
)

// ParseNumber parses a decimal string as returned by providers that encode
// numbers as text. Empty strings and "None" yield 0.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parsing number %q: not finite", s)
	}
	return v, nil
}

// ParsePercent parses values such as "1.25%" or "-0.4".
func ParsePercent(s string) (float64, error) {
	return ParseNumber(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

// ParseVolume parses an integer volume, tolerating a decimal representation.
func ParseVolume(s string) (int64, error) {
	v, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(v)), nil
}

// ParseDay parses a YYYY-MM-DD date, ignoring any time suffix.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(clock.DateLayout) {
		s = s[:len(clock.DateLayout)]
	}
	return time.Parse(clock.DateLayout, s)
}

// Window returns the first day included in a history window of days ending
// at now.
func Window(now time.Time, days int) time.Time {
	return clock.Day(now).AddDate(0, 0, -days)
}
