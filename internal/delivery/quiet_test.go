package delivery

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/albapepper/streamwatch/internal/store"
)

func TestLocalWindow(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2026, 1, 10, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name  string
		prefs *store.Preferences
		now   time.Time
		want  bool
	}{
		{"nil prefs", nil, at(23, 0), false},
		{"no window", &store.Preferences{}, at(23, 0), false},
		{"inside wrapped window", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}, at(23, 0), true},
		{"early morning wrapped", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}, at(6, 59), true},
		{"end is exclusive", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}, at(7, 0), false},
		{"start is inclusive", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}, at(22, 0), true},
		{"daytime window", &store.Preferences{QuietHoursStart: "12:00", QuietHoursEnd: "14:00"}, at(13, 0), true},
		{"outside daytime window", &store.Preferences{QuietHoursStart: "12:00", QuietHoursEnd: "14:00"}, at(15, 0), false},
		{"postgres time format", &store.Preferences{QuietHoursStart: "22:00:00", QuietHoursEnd: "07:00:00"}, at(1, 0), true},
		{"empty window", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "22:00"}, at(22, 0), false},
		{"malformed", &store.Preferences{QuietHoursStart: "late", QuietHoursEnd: "07:00"}, at(1, 0), false},
		// 23:00 UTC is 18:00 in New York in January.
		{"user timezone", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00", Timezone: "America/New_York"}, at(23, 0), false},
		{"unknown timezone falls back to UTC", &store.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00", Timezone: "Mars/Base"}, at(23, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocalWindow(tt.prefs, tt.now); got != tt.want {
				t.Errorf("LocalWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	prefs := &store.Preferences{QuietHoursStart: "00:00", QuietHoursEnd: "23:59"}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if Policy("off")(prefs, now) {
		t.Error(`Policy("off") reported quiet hours`)
	}
	if !Policy("local")(prefs, now) {
		t.Error(`Policy("local") did not apply the window`)
	}
}
