package delivery

import (
	"time"

	"github.com/albapepper/streamwatch/internal/store"
)

// QuietHoursFunc reports whether push should be held back for prefs at now.
type QuietHoursFunc func(prefs *store.Preferences, now time.Time) bool

// NeverQuiet is the default policy: push is never held back.
func NeverQuiet(*store.Preferences, time.Time) bool { return false }

// LocalWindow treats the stored window as wall-clock times in the user's
// timezone (UTC when unset or unknown). The start is inclusive, the end
// exclusive, and a start after the end wraps past midnight.
func LocalWindow(prefs *store.Preferences, now time.Time) bool {
	if prefs == nil || prefs.QuietHoursStart == "" || prefs.QuietHoursEnd == "" {
		return false
	}
	start, ok := minuteOfDay(prefs.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := minuteOfDay(prefs.QuietHoursEnd)
	if !ok || start == end {
		return false
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil || prefs.Timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()

	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// minuteOfDay parses "15:04" or "15:04:05" (the Postgres time rendering).
func minuteOfDay(s string) (int, bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

// Policy maps a QUIET_HOURS_POLICY value to a function: "local" selects
// LocalWindow, anything else NeverQuiet.
func Policy(name string) QuietHoursFunc {
	if name == "local" {
		return LocalWindow
	}
	return NeverQuiet
}
