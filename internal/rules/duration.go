// internal/rules/duration.go
package rules

import (
	"regexp"
	"strconv"
	"time"
)

// isoDuration matches ISO-8601 durations such as P30D, P1Y2M, PT12H, P1DT6H30M.
// Weeks (P2W) are accepted on their own, as the standard allows.
var isoDuration = regexp.MustCompile(
	`^P(?:(\d+)W|(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?)$`)

// relativeDate is a parsed "P..." literal: a calendar offset plus a clock offset.
type relativeDate struct {
	years, months, days int
	clock               time.Duration
}

// parseRelativeDate parses an ISO-8601 duration. Returns ok=false when s is
// not a duration or is the empty duration "P"/"PT".
func parseRelativeDate(s string) (relativeDate, bool) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return relativeDate{}, false
	}

	n := func(i int) int {
		if m[i] == "" {
			return 0
		}
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return 0
		}
		return v
	}

	var d relativeDate
	if m[1] != "" {
		d.days = n(1) * 7
	} else {
		d.years, d.months, d.days = n(2), n(3), n(4)
		d.clock = time.Duration(n(5))*time.Hour +
			time.Duration(n(6))*time.Minute +
			time.Duration(n(7))*time.Second
	}

	empty := true
	for _, g := range m[1:] {
		if g != "" {
			empty = false
			break
		}
	}
	if empty {
		return relativeDate{}, false
	}
	return d, true
}

// before returns the instant that lies d before now.
func (d relativeDate) before(now time.Time) time.Time {
	return now.AddDate(-d.years, -d.months, -d.days).Add(-d.clock)
}
