// Package `duration` parses human durations for configuration values, with
// days and weeks on top of what [time.ParseDuration] accepts.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var unitMap = map[string]time.Duration{
	"ns":  time.Nanosecond,
	"us":  time.Microsecond,
	"ms":  time.Millisecond,
	"s":   time.Second,
	"m":   time.Minute,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   Day,
	"w":   Week,
}

// Largest first, for [String].
var unitOrder = []string{"w", "d", "h", "m", "s", "ms", "us", "ns"}

// Parse turns a string such as "30s", "1m30s" or "2d" into a duration.
// A bare integer such as "30" is read as seconds. Fractions aren't accepted,
// so "5h30m" is fine but "5.5h" isn't.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}

	var total time.Duration
	for s != "" {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("duration: Expected a number at '%v'.", s)
		}
		val, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration: Bad number '%v' (%w).", s[:i], err)
		}
		s = s[i:]

		j := 0
		for j < len(s) && (s[j] < '0' || s[j] > '9') {
			j++
		}
		unit, ok := unitMap[s[:j]]
		if !ok {
			if j == 0 {
				return 0, fmt.Errorf("duration: Missing unit for number %v.", val)
			}
			return 0, fmt.Errorf("duration: Unknown unit '%v'.", s[:j])
		}
		s = s[j:]
		total += time.Duration(val) * unit
	}
	if neg {
		total = -total
	}
	return total, nil
}

// String formats a duration with the units accepted by [Parse], e.g. "1d2h".
func String(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	for _, name := range unitOrder {
		u := unitMap[name]
		if q := d / u; q > 0 {
			sb.WriteString(strconv.FormatInt(int64(q), 10))
			sb.WriteString(name)
			d -= q * u
		}
	}
	return sb.String()
}
