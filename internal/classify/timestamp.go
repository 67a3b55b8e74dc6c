package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// strategy records which rule resolved a timestamp.
type strategy int

const (
	strategyNone strategy = iota
	strategyToday
	strategyYesterday
	strategyDate
)

var (
	clockPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?\s*([AaPp])\.?\s*[Mm]\.?$|^(\d{1,2}):(\d{2})(?::\d{2})?$`)
	yesterdayPattern = regexp.MustCompile(`(?i)^yesterday[,\s]+(?:at\s+)?(.+)$`)
)

// dateLayouts are tried in order by the generic strategy. Layouts without a
// year are pinned to the current year.
var dateLayouts = []struct {
	layout  string
	hasYear bool
}{
	{time.RFC3339, true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04", true},
	{"2006-01-02T15:04", true},
	{"01/02/2006 03:04 PM", true},
	{"1/2/2006 3:04 PM", true},
	{"1/2/2006, 3:04 PM", true},
	{"1/2/06 3:04 PM", true},
	{"1/2/06, 3:04 PM", true},
	{"1/2/2006 15:04", true},
	{"Jan 2, 2006 3:04 PM", true},
	{"Jan 2, 2006, 3:04 PM", true},
	{"Jan 2, 2006 at 3:04 PM", true},
	{"January 2, 2006 3:04 PM", true},
	{"Mon, Jan 2, 2006 3:04 PM", true},
	{"Jan 2, 2006", true},
	{"1/2/2006", true},
	{"2006-01-02", true},
	{"Jan 2 3:04 PM", false},
	{"Jan 2, 3:04 PM", false},
	{"Jan 2 at 3:04 PM", false},
	{"Mon, Jan 2 3:04 PM", false},
	{"Jan 2", false},
}

// clock is a wall-clock time of day in minutes since midnight.
type clock struct {
	minutes int
}

func (c clock) hour() int   { return c.minutes / 60 }
func (c clock) minute() int { return c.minutes % 60 }

// parseClock parses "H:MM", "H:MM AM|PM" and 24-hour "HH:MM".
func parseClock(s string) (clock, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return clock{}, false
	}

	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h < 1 || h > 12 || mm > 59 {
			return clock{}, false
		}
		h %= 12
		if m[3] == "p" || m[3] == "P" {
			h += 12
		}
		return clock{minutes: h*60 + mm}, true
	}

	h, _ := strconv.Atoi(m[4])
	mm, _ := strconv.Atoi(m[5])
	if h > 23 || mm > 59 {
		return clock{}, false
	}
	return clock{minutes: h*60 + mm}, true
}

// resolved is a timestamp before sibling adjustment.
type resolved struct {
	strategy strategy
	clock    clock
	at       time.Time
}

// on returns the clock time on the calendar day containing day.
func (c clock) on(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, c.hour(), c.minute(), 0, 0, day.Location())
}

// resolveTimestamp applies the bare-clock, yesterday and generic date
// strategies in that order. now must already be in the display location.
func resolveTimestamp(text string, now time.Time) (resolved, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return resolved{}, false
	}

	if c, ok := parseClock(text); ok {
		return resolved{strategy: strategyToday, clock: c, at: c.on(now)}, true
	}

	if m := yesterdayPattern.FindStringSubmatch(text); m != nil {
		if c, ok := parseClock(m[1]); ok {
			return resolved{strategy: strategyYesterday, clock: c, at: c.on(now.AddDate(0, 0, -1))}, true
		}
		return resolved{}, false
	}

	if strings.HasPrefix(strings.ToLower(text), "today") {
		rest := strings.TrimSpace(text[len("today"):])
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, ","), " ")
		rest = strings.TrimPrefix(rest, "at ")
		if c, ok := parseClock(rest); ok {
			return resolved{strategy: strategyToday, clock: c, at: c.on(now)}, true
		}
		return resolved{}, false
	}

	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, text, now.Location())
		if err != nil {
			continue
		}
		if !l.hasYear {
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
			// A yearless date more than a day ahead belongs to last year.
			if t.After(now.Add(24 * time.Hour)) {
				t = t.AddDate(-1, 0, 0)
			}
		}
		c := clock{minutes: t.Hour()*60 + t.Minute()}
		return resolved{strategy: strategyDate, clock: c, at: t}, true
	}

	return resolved{}, false
}

// wrapsMidnight reports whether a and b are within tolerance of each other
// only when measured across midnight.
func wrapsMidnight(a, b clock, tolerance time.Duration) bool {
	const day = 24 * 60
	linear := a.minutes - b.minutes
	if linear < 0 {
		linear = -linear
	}
	circular := day - linear
	tol := int(tolerance / time.Minute)
	return circular < linear && circular <= tol
}
