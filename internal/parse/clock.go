package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day value, except that
// "24:00" is accepted as the end of the day.
const MinutesPerDay = 24 * 60

// DateLayout is the YYYY-MM-DD layout used for booking dates.
const DateLayout = "2006-01-02"

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseClock converts an "HH:MM" (or "HH:MM:SS") 24-hour string into minutes since
// midnight. Seconds are accepted and dropped.
func ParseClock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unable to parse clock time: %q", raw)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}

	if minute > 59 || second > 59 {
		return 0, fmt.Errorf("clock time out of range: %q", raw)
	}
	total := hour*60 + minute
	if total > MinutesPerDay || (total == MinutesPerDay && second != 0) {
		return 0, fmt.Errorf("clock time out of range: %q", raw)
	}
	return total, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a YYYY-MM-DD booking date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date %q: %w", raw, err)
	}
	return d, nil
}
