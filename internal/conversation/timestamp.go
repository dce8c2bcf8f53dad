package conversation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp converts a Slack "seconds.micros" timestamp to a time.Time.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	var micros int64
	if frac != "" {
		if strings.TrimLeft(frac, "0123456789") != "" {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: fraction must be digits", ts)
		}
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		micros, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(s, micros*int64(time.Microsecond)).UTC(), nil
}

// FormatTimestamp renders t as a Slack timestamp with microsecond precision.
func FormatTimestamp(t time.Time) string {
	micros := t.UnixMicro()
	secs := micros / 1_000_000
	rem := micros % 1_000_000
	if rem < 0 {
		secs--
		rem += 1_000_000
	}
	return fmt.Sprintf("%d.%06d", secs, rem)
}

// SubtractHours returns the Slack timestamp hours before ts.
func SubtractHours(ts string, hours float64) (string, error) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return "", err
	}
	d := time.Duration(math.Round(hours * float64(time.Hour)))
	return FormatTimestamp(t.Add(-d)), nil
}

// CompareTimestamps orders two Slack timestamps numerically. Unparsable
// values fall back to a lexical comparison.
func CompareTimestamps(a, b string) int {
	ta, errA := ParseTimestamp(a)
	tb, errB := ParseTimestamp(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return ta.Compare(tb)
}
