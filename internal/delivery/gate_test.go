package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/albapepper/streamwatch/internal/push"
	"github.com/albapepper/streamwatch/internal/store"
)

var testNow = time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)

type fakePusher struct {
	bad    map[string]bool
	err    error
	calls  int
	tokens []string
}

func (f *fakePusher) SendMulticast(_ context.Context, tokens []string, _ push.Message) (*push.BatchResult, error) {
	f.calls++
	f.tokens = tokens
	if f.err != nil {
		return nil, f.err
	}
	res := &push.BatchResult{}
	for _, tok := range tokens {
		if f.bad[tok] {
			res.Failure++
			res.Results = append(res.Results, push.TokenResult{Token: tok, Err: errors.New("unregistered"), Unregistered: true})
			continue
		}
		res.Success++
		res.Results = append(res.Results, push.TokenResult{Token: tok, MessageID: "m"})
	}
	return res, nil
}

// prefsFailing makes the preferences lookup fail.
type prefsFailing struct{ *store.SQLite }

func (prefsFailing) Preferences(context.Context, string) (*store.Preferences, error) {
	return nil, errors.New("connection reset")
}

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newGate(st Store, p Pusher, opts ...Option) *Gate {
	opts = append([]Option{WithClock(testclock.NewClock(testNow))}, opts...)
	return NewGate(st, p, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func request(userID string) Request {
	return Request{
		UserID:   userID,
		Category: "streaming_alerts",
		Title:    "Now on Netflix!",
		Body:     "Fight Club is now available on Netflix",
		Data:     map[string]string{"type": "streaming_alert", "tmdb_id": "550"},
	}
}

func TestDeliverCategoryDisabled(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := t.Context()
	st.SetPreferences(ctx, store.Preferences{UserID: "u1", Categories: map[string]bool{"streaming_alerts": false}})
	st.RegisterDeviceToken(ctx, "u1", "tok")
	p := &fakePusher{}

	res, err := newGate(st, p).Deliver(ctx, request("u1"))
	if err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if res.SkippedReason != SkippedDisabled || res.InApp {
		t.Errorf("result = %+v, want disabled skip without in-app", res)
	}
	if p.calls != 0 {
		t.Error("push sent for a disabled category")
	}
	if rows, _ := st.Notifications(ctx, "u1"); len(rows) != 0 {
		t.Errorf("in-app rows = %d, want 0", len(rows))
	}
}

func TestDeliverOtherCategoryStillEnabled(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := t.Context()
	st.SetPreferences(ctx, store.Preferences{UserID: "u1", Categories: map[string]bool{"talent_releases": false}})

	res, err := newGate(st, &fakePusher{}).Deliver(ctx, request("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedReason != "" || !res.InApp {
		t.Errorf("result = %+v, want in-app delivery", res)
	}
}

func TestDeliverQuietHoursHook(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := t.Context()
	st.SetPreferences(ctx, store.Preferences{UserID: "u1", QuietHoursStart: "22:00", QuietHoursEnd: "07:00"})
	st.RegisterDeviceToken(ctx, "u1", "tok")
	p := &fakePusher{}

	res, err := newGate(st, p, WithQuietHours(LocalWindow)).Deliver(ctx, request("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedReason != SkippedQuietHours || !res.InApp {
		t.Errorf("result = %+v, want quiet-hours skip with in-app", res)
	}
	if p.calls != 0 {
		t.Error("push sent during quiet hours")
	}

	// Default policy ignores the window.
	res, err = newGate(st, p).Deliver(ctx, request("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 || p.calls != 1 {
		t.Errorf("default policy result = %+v, calls = %d", res, p.calls)
	}
}

func TestDeliverNoDevices(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	p := &fakePusher{}

	res, err := newGate(st, p).Deliver(t.Context(), request("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 0 || !res.InApp || p.calls != 0 {
		t.Errorf("result = %+v, calls = %d", res, p.calls)
	}
	rows, err := st.Notifications(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Data["tmdb_id"] != "550" || !rows[0].CreatedAt.Equal(testNow) {
		t.Errorf("in-app rows = %+v", rows)
	}
}

func TestDeliverPartialPushFailure(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := t.Context()
	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		st.RegisterDeviceToken(ctx, "u1", tok)
	}
	p := &fakePusher{bad: map[string]bool{"tok-2": true}}

	res, err := newGate(st, p).Deliver(ctx, request("u1"))
	if err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("sent/failed = %d/%d, want 2/1", res.Sent, res.Failed)
	}
	if len(p.tokens) != 3 {
		t.Errorf("push called with %d tokens, want one batch of 3", len(p.tokens))
	}

	left, err := st.DeviceTokens(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Errorf("tokens after cleanup = %v, want stale token removed", left)
	}
}

func TestDeliverPushError(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := t.Context()
	st.RegisterDeviceToken(ctx, "u1", "tok")

	res, err := newGate(st, &fakePusher{err: errors.New("fcm unavailable")}).Deliver(ctx, request("u1"))
	if err == nil {
		t.Fatal("Deliver() returned nil error for a failed push call")
	}
	if !res.InApp {
		t.Error("in-app flag lost on push error")
	}
}

func TestDeliverPreferencesLookupFailureProceeds(t *testing.T) {
	t.Parallel()
	st := newStore(t)

	res, err := newGate(prefsFailing{st}, &fakePusher{}).Deliver(t.Context(), request("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.InApp {
		t.Errorf("result = %+v, want delivery with defaults", res)
	}
}

func TestDeliverWithoutPusher(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	st.RegisterDeviceToken(t.Context(), "u1", "tok")

	res, err := newGate(st, nil).Deliver(t.Context(), request("u1"))
	if err != nil || !res.InApp || res.Sent != 0 {
		t.Errorf("Deliver() = %+v, %v", res, err)
	}
}

func TestDeliverInvalidRequest(t *testing.T) {
	t.Parallel()
	st := newStore(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing user", Request{Category: "c", Title: "t", Body: "b"}},
		{"missing category", Request{UserID: "u", Title: "t", Body: "b"}},
		{"missing body", Request{UserID: "u", Category: "c", Title: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGate(st, nil).Deliver(t.Context(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}
