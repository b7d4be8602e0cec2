package entity

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

var (
	isoStampRe = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2})[t ](\d{2}:\d{2})\b`)
	isoDateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	clock12Re  = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s?(am|pm)\b`)
	clock24Re  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe     = regexp.MustCompile(`(?i)\bnoon\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	todayRe    = regexp.MustCompile(`(?i)\btoday\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\btomorrow\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Now resolves the actor's clock: NowISO interpreted in the actor's timezone.
// An unknown timezone falls back to UTC. Returns false if NowISO is unusable.
func Now(actor domain.ActorContext) (time.Time, bool) {
	now, err := time.Parse(time.RFC3339, actor.NowISO)
	if err != nil {
		return time.Time{}, false
	}
	loc := time.UTC
	if actor.Timezone != "" {
		if l, err := time.LoadLocation(actor.Timezone); err == nil {
			loc = l
		}
	}
	return now.In(loc), true
}

// Start finds a start time in text relative to now. A clock time is required;
// the date defaults to now's date. Supported dates: ISO dates, "today",
// "tomorrow" and weekday names (the next such day after today).
func Start(text string, now time.Time) (time.Time, bool) {
	loc := now.Location()

	if m := isoStampRe.FindStringSubmatch(text); m != nil {
		t, err := time.ParseInLocation("2006-01-02 15:04", m[1]+" "+m[2], loc)
		if err == nil {
			return t, true
		}
	}

	hour, minute, ok := clockOf(text)
	if !ok {
		return time.Time{}, false
	}

	y, mo, d := dateOf(text, now)
	return time.Date(y, mo, d, hour, minute, 0, 0, loc), true
}

func dateOf(text string, now time.Time) (int, time.Month, int) {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if t, err := time.ParseInLocation("2006-01-02", m[1], now.Location()); err == nil {
			return t.Date()
		}
	}
	switch {
	case tomorrowRe.MatchString(text):
		return now.AddDate(0, 0, 1).Date()
	case todayRe.MatchString(text):
		return now.Date()
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		want := weekdays[strings.ToLower(m[1])]
		delta := (int(want) - int(now.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return now.AddDate(0, 0, delta).Date()
	}
	return now.Date()
}

func clockOf(text string) (int, int, bool) {
	if m := clock12Re.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		pm := strings.EqualFold(m[3], "pm")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return h, min, true
	}
	if m := clock24Re.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return h, min, true
	}
	if noonRe.MatchString(text) {
		return 12, 0, true
	}
	return 0, 0, false
}
