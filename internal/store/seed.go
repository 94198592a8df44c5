package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// SeedData is a local-development fixture: tracked titles with their
// watchers, followed people, device tokens and preferences.
type SeedData struct {
	Titles []struct {
		TMDBID    int      `json:"tmdb_id"`
		MediaType string   `json:"media_type"`
		Title     string   `json:"title"`
		Watchers  []string `json:"watchers"`
	} `json:"titles"`
	Persons []struct {
		TMDBPersonID int      `json:"tmdb_person_id"`
		Name         string   `json:"name"`
		Followers    []string `json:"followers"`
	} `json:"persons"`
	Devices []struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	} `json:"devices"`
	Preferences []struct {
		UserID          string          `json:"user_id"`
		Categories      map[string]bool `json:"categories"`
		QuietHoursStart string          `json:"quiet_hours_start"`
		QuietHoursEnd   string          `json:"quiet_hours_end"`
		Timezone        string          `json:"timezone"`
	} `json:"preferences"`
}

// SeedCounts reports what Seed wrote.
type SeedCounts struct {
	Titles, Watchlist, Persons, Follows, Devices, Preferences int
}

// ReadSeed decodes a seed fixture.
func ReadSeed(r io.Reader) (*SeedData, error) {
	var d SeedData
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &d, nil
}

// Seed writes d. Existing rows are updated, so seeding twice is harmless.
// Snapshots of existing titles are kept.
func (s *SQLite) Seed(ctx context.Context, d *SeedData) (SeedCounts, error) {
	var c SeedCounts
	for _, t := range d.Titles {
		if t.TMDBID <= 0 || (t.MediaType != "movie" && t.MediaType != "tv") {
			return c, fmt.Errorf("seed title %q: invalid tmdb_id or media_type", t.Title)
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO content_cache (tmdb_id, media_type, title, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (tmdb_id, media_type) DO UPDATE SET title = excluded.title`,
			t.TMDBID, t.MediaType, t.Title, s.timestamp())
		if err != nil {
			return c, fmt.Errorf("seed title %d: %w", t.TMDBID, err)
		}
		c.Titles++
		for _, u := range t.Watchers {
			if err := s.AddWatchlistItem(ctx, u, t.TMDBID, t.MediaType); err != nil {
				return c, err
			}
			c.Watchlist++
		}
	}
	for _, p := range d.Persons {
		c.Persons++
		for _, u := range p.Followers {
			if err := s.FollowPerson(ctx, u, Person{TMDBPersonID: p.TMDBPersonID, Name: p.Name}); err != nil {
				return c, err
			}
			c.Follows++
		}
	}
	for _, dv := range d.Devices {
		if err := s.RegisterDeviceToken(ctx, dv.UserID, dv.Token); err != nil {
			return c, err
		}
		c.Devices++
	}
	for _, p := range d.Preferences {
		err := s.SetPreferences(ctx, Preferences{
			UserID:          p.UserID,
			Categories:      p.Categories,
			QuietHoursStart: p.QuietHoursStart,
			QuietHoursEnd:   p.QuietHoursEnd,
			Timezone:        p.Timezone,
		})
		if err != nil {
			return c, err
		}
		c.Preferences++
	}
	return c, nil
}
