package store

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/streamwatch/internal/catalog"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "streamwatch.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func streamingEvent(titleID, providerID int) ChangeEvent {
	return ChangeEvent{
		Kind:       KindStreaming,
		EntityID:   titleID,
		MediaType:  "movie",
		FactID:     providerID,
		FactType:   catalog.CategoryFlatrate,
		FactName:   "Netflix",
		ChangeType: ChangeAdded,
	}
}

func TestRecordEventIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	created, err := s.RecordEvent(ctx, streamingEvent(550, 8))
	if err != nil || !created {
		t.Fatalf("first RecordEvent() = %v, %v; want true, nil", created, err)
	}
	created, err = s.RecordEvent(ctx, streamingEvent(550, 8))
	if err != nil || created {
		t.Fatalf("second RecordEvent() = %v, %v; want false, nil", created, err)
	}

	// A different category is a different key.
	other := streamingEvent(550, 8)
	other.FactType = catalog.CategoryRent
	if created, err := s.RecordEvent(ctx, other); err != nil || !created {
		t.Fatalf("RecordEvent(rent) = %v, %v; want true, nil", created, err)
	}
}

func TestRecordEventConcurrentSingleCreator(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	const workers = 8
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RecordEvent(t.Context(), streamingEvent(42, 337))
			if err != nil {
				t.Errorf("RecordEvent() error: %v", err)
				return
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := created.Load(); got != 1 {
		t.Errorf("created = %d across %d concurrent recorders, want 1", got, workers)
	}
}

func TestUpdateNotifiedCountAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	e := streamingEvent(550, 8)
	if _, err := s.RecordEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateNotifiedCount(ctx, e.Key(), 3); err != nil {
		t.Fatalf("UpdateNotifiedCount() error: %v", err)
	}

	events, err := s.RecentEvents(ctx, KindStreaming, 10)
	if err != nil {
		t.Fatalf("RecentEvents() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("RecentEvents() returned %d events, want 1", len(events))
	}
	got := events[0]
	if got.NotifiedCount != 3 || got.FactID != 8 || got.FactType != catalog.CategoryFlatrate || got.EntityID != 550 {
		t.Errorf("event = %+v", got)
	}
	if got.DetectedAt.IsZero() {
		t.Error("DetectedAt is zero")
	}
}

func TestTalentEventsFeedKnownCredits(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	e := ChangeEvent{
		Kind:       KindTalent,
		EntityID:   287,
		MediaType:  "tv",
		FactID:     1399,
		FactName:   "Some Show",
		ChangeType: ChangeAdded,
	}
	if created, err := s.RecordEvent(ctx, e); err != nil || !created {
		t.Fatalf("RecordEvent() = %v, %v", created, err)
	}

	known, err := s.KnownCredits(ctx, 287)
	if err != nil {
		t.Fatalf("KnownCredits() error: %v", err)
	}
	if _, ok := known[catalog.CreditKey{ContentID: 1399, MediaType: "tv"}]; !ok || len(known) != 1 {
		t.Errorf("KnownCredits() = %v", known)
	}

	if err := s.UpdateNotifiedCount(ctx, e.Key(), 2); err != nil {
		t.Fatal(err)
	}
	events, err := s.RecentEvents(ctx, KindTalent, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].NotifiedCount != 2 || events[0].FactName != "Some Show" {
		t.Errorf("RecentEvents(talent) = %+v", events)
	}
}

func TestSnapshotReplacedNotMerged(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	title := Title{
		TMDBID:    550,
		MediaType: "movie",
		Title:     "Fight Club",
		Providers: []catalog.Provider{{ID: 8, Name: "Netflix", Type: catalog.CategoryFlatrate}},
	}
	if err := s.UpsertTitle(ctx, title); err != nil {
		t.Fatal(err)
	}
	if err := s.AddWatchlistItem(ctx, "u1", 550, "movie"); err != nil {
		t.Fatal(err)
	}

	replacement := []catalog.Provider{{ID: 337, Name: "Disney Plus", Type: catalog.CategoryFlatrate}}
	if err := s.ReplaceProviderSnapshot(ctx, title, replacement); err != nil {
		t.Fatalf("ReplaceProviderSnapshot() error: %v", err)
	}

	titles, err := s.HotTitles(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 1 {
		t.Fatalf("HotTitles() returned %d titles", len(titles))
	}
	if got := titles[0].Providers; len(got) != 1 || got[0].ID != 337 {
		t.Errorf("snapshot = %+v, want only provider 337", got)
	}

	if err := s.ReplaceProviderSnapshot(ctx, title, nil); err != nil {
		t.Fatal(err)
	}
	titles, _ = s.HotTitles(ctx, 10)
	if len(titles[0].Providers) != 0 {
		t.Errorf("snapshot after empty replace = %+v, want empty", titles[0].Providers)
	}
}

func TestHotTitlesOrderedByWatchlistCount(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	for _, id := range []int{1, 2, 3} {
		if err := s.UpsertTitle(ctx, Title{TMDBID: id, MediaType: "movie", Title: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	watch := map[int][]string{1: {"a"}, 2: {"a", "b", "c"}, 3: {"a", "b"}}
	for id, users := range watch {
		for _, u := range users {
			if err := s.AddWatchlistItem(ctx, u, id, "movie"); err != nil {
				t.Fatal(err)
			}
		}
	}

	titles, err := s.HotTitles(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 2 || titles[0].TMDBID != 2 || titles[1].TMDBID != 3 {
		t.Errorf("HotTitles(2) = %+v, want ids [2 3]", titles)
	}
	if titles[0].WatchlistCount != 3 {
		t.Errorf("WatchlistCount = %d, want 3", titles[0].WatchlistCount)
	}
}

func TestAudiences(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	title := Title{TMDBID: 10, MediaType: "tv", Title: "Show"}
	if err := s.UpsertTitle(ctx, title); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"u2", "u1"} {
		if err := s.AddWatchlistItem(ctx, u, 10, "tv"); err != nil {
			t.Fatal(err)
		}
	}
	person := Person{TMDBPersonID: 500, Name: "Tom Cruise"}
	if err := s.FollowPerson(ctx, "u3", person); err != nil {
		t.Fatal(err)
	}

	users, err := s.StreamingAudience(ctx, title, catalog.Provider{ID: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("StreamingAudience() = %v", users)
	}

	followers, err := s.TalentAudience(ctx, person)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0] != "u3" {
		t.Errorf("TalentAudience() = %v", followers)
	}

	persons, err := s.FollowedPersons(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(persons) != 1 || persons[0].Name != "Tom Cruise" || persons[0].FollowerCount != 1 {
		t.Errorf("FollowedPersons() = %+v", persons)
	}
}

func TestPreferences(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	p, err := s.Preferences(ctx, "nobody")
	if err != nil || p != nil {
		t.Fatalf("Preferences(missing) = %v, %v; want nil, nil", p, err)
	}
	if p.Disabled("streaming_alerts") {
		t.Error("nil preferences disabled a category")
	}

	err = s.SetPreferences(ctx, Preferences{
		UserID:          "u1",
		Categories:      map[string]bool{"streaming_alerts": false},
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "07:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err = s.Preferences(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Disabled("streaming_alerts") {
		t.Error("streaming_alerts not disabled")
	}
	if p.Disabled("talent_releases") {
		t.Error("unset talent_releases treated as disabled")
	}
	if p.QuietHoursStart != "22:00" || p.QuietHoursEnd != "07:00" {
		t.Errorf("quiet hours = %q-%q", p.QuietHoursStart, p.QuietHoursEnd)
	}
}

func TestDeviceTokens(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		if err := s.RegisterDeviceToken(ctx, "u1", tok); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteDeviceTokens(ctx, []string{"tok-a", "tok-c"}); err != nil {
		t.Fatalf("DeleteDeviceTokens() error: %v", err)
	}
	if err := s.DeleteDeviceTokens(ctx, nil); err != nil {
		t.Fatalf("DeleteDeviceTokens(nil) error: %v", err)
	}

	tokens, err := s.DeviceTokens(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0] != "tok-b" {
		t.Errorf("DeviceTokens() = %v, want [tok-b]", tokens)
	}
}

func TestNotificationsInsertAndPurge(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := InAppNotification{
		ID: uuid.New(), UserID: "u1", Category: "streaming_alerts",
		Title: "Now on Netflix!", Body: "old", CreatedAt: now.Add(-40 * 24 * time.Hour),
	}
	fresh := InAppNotification{
		ID: uuid.New(), UserID: "u1", Category: "streaming_alerts",
		Title: "Now on Netflix!", Body: "fresh", ImageURL: "https://img/x.png",
		Data: map[string]string{"tmdb_id": "550"}, CreatedAt: now,
	}
	for _, n := range []InAppNotification{old, fresh} {
		if err := s.InsertNotification(ctx, n); err != nil {
			t.Fatalf("InsertNotification() error: %v", err)
		}
	}

	purged, err := s.PurgeNotifications(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	left, err := s.Notifications(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Body != "fresh" || left[0].Data["tmdb_id"] != "550" || left[0].ImageURL != "https://img/x.png" {
		t.Errorf("remaining = %+v", left)
	}
}
