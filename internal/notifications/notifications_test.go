package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/delivery"
	"github.com/albapepper/streamwatch/internal/store"
)

type fakeGate struct {
	fail    map[string]error
	panicOn string
	skip    map[string]bool
	seen    []delivery.Request
}

func (f *fakeGate) Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error) {
	f.seen = append(f.seen, req)
	if req.UserID == f.panicOn {
		panic("boom")
	}
	if err := f.fail[req.UserID]; err != nil {
		return delivery.Result{}, err
	}
	if f.skip[req.UserID] {
		return delivery.Result{SkippedReason: delivery.SkippedDisabled}, nil
	}
	return delivery.Result{Sent: 1, InApp: true}, nil
}

// slowGate blocks until its context expires.
type slowGate struct{}

func (slowGate) Deliver(ctx context.Context, _ delivery.Request) (delivery.Result, error) {
	<-ctx.Done()
	return delivery.Result{}, ctx.Err()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatchBestEffort(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{
		fail:    map[string]error{"u2": errors.New("db down")},
		panicOn: "u4",
		skip:    map[string]bool{"u3": true},
	}
	d := NewDispatcher(gate, time.Second, discard())

	sent := d.Dispatch(t.Context(), []string{"u1", "u2", "u3", "u4", "u5"}, Message{Category: "streaming_alerts", Title: "t", Body: "b"})

	// u2 errors and u4 panics; the skipped u3 still counts.
	if sent != 3 {
		t.Errorf("sent = %d, want 3", sent)
	}
	if len(gate.seen) != 5 {
		t.Errorf("attempts = %d, want one per recipient", len(gate.seen))
	}
}

func TestDispatchPerRecipientTimeout(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(slowGate{}, 10*time.Millisecond, discard())
	start := time.Now()
	sent := d.Dispatch(t.Context(), []string{"u1", "u2"}, Message{Category: "c", Title: "t", Body: "b"})
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %v, per-recipient timeout not applied", elapsed)
	}
}

func TestDispatchNoRecipients(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{}
	if sent := NewDispatcher(gate, 0, discard()).Dispatch(t.Context(), nil, Message{}); sent != 0 || len(gate.seen) != 0 {
		t.Errorf("sent = %d, attempts = %d", sent, len(gate.seen))
	}
}

func TestStreamingMessage(t *testing.T) {
	t.Parallel()

	msg := StreamingMessage(
		store.Title{TMDBID: 550, MediaType: "movie", Title: "Fight Club"},
		catalog.Provider{ID: 8, Name: "Netflix", LogoPath: "/netflix.png", Type: catalog.CategoryFlatrate},
		"https://image.tmdb.org/t/p/original",
	)

	if msg.Title != "Now on Netflix!" {
		t.Errorf("Title = %q", msg.Title)
	}
	if msg.Body != "Fight Club is now available on Netflix" {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.ImageURL != "https://image.tmdb.org/t/p/original/netflix.png" {
		t.Errorf("ImageURL = %q", msg.ImageURL)
	}
	want := map[string]string{
		"type": "streaming_alert", "tmdb_id": "550", "media_type": "movie",
		"provider_name": "Netflix", "provider_id": "8",
	}
	for k, v := range want {
		if msg.Data[k] != v {
			t.Errorf("Data[%q] = %q, want %q", k, msg.Data[k], v)
		}
	}
	if msg.Category != "streaming_alerts" {
		t.Errorf("Category = %q", msg.Category)
	}
}

func TestTalentMessage(t *testing.T) {
	t.Parallel()

	person := store.Person{TMDBPersonID: 500, Name: "Tom Cruise"}

	movie := TalentMessage(person, catalog.Credit{ID: 9, Title: "Top Gun 3", MediaType: "movie"}, "https://img")
	if movie.Body != "Top Gun 3 (Movie) — featuring Tom Cruise" {
		t.Errorf("Body = %q", movie.Body)
	}
	if movie.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty without a poster", movie.ImageURL)
	}
	if movie.Data["person_id"] != "500" || movie.Data["tmdb_id"] != "9" || movie.Data["type"] != "talent_release" {
		t.Errorf("Data = %v", movie.Data)
	}

	show := TalentMessage(person, catalog.Credit{ID: 10, Title: "Show", MediaType: "tv", PosterPath: "/p.jpg"}, "https://img")
	if show.Title != "New from Tom Cruise!" || show.Body != "Show (TV Show) — featuring Tom Cruise" {
		t.Errorf("show message = %q / %q", show.Title, show.Body)
	}
	if show.ImageURL != "https://img/p.jpg" {
		t.Errorf("ImageURL = %q", show.ImageURL)
	}
}
