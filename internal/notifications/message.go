// Package notifications builds the human and machine payloads for detected
// changes and fans them out to recipients through the delivery gate.
package notifications

import (
	"fmt"

	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/config"
	"github.com/albapepper/streamwatch/internal/store"
)

// Payload types carried in Data["type"] for client deep-linking.
const (
	TypeStreamingAlert = "streaming_alert"
	TypeTalentRelease  = "talent_release"
)

// Message is the recipient-independent part of a notification. Every Data
// value is a string because the push transport accepts nothing else.
type Message struct {
	Category string
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// StreamingMessage announces that a title became available on a provider.
func StreamingMessage(t store.Title, p catalog.Provider, imageBase string) Message {
	return Message{
		Category: config.CategoryStreamingAlerts,
		Title:    fmt.Sprintf("Now on %s!", p.Name),
		Body:     fmt.Sprintf("%s is now available on %s", t.Title, p.Name),
		ImageURL: imageURL(imageBase, p.LogoPath),
		Data: map[string]string{
			"type":          TypeStreamingAlert,
			"tmdb_id":       catalog.FormatID(t.TMDBID),
			"media_type":    t.MediaType,
			"provider_name": p.Name,
			"provider_id":   catalog.FormatID(p.ID),
		},
	}
}

// TalentMessage announces new or upcoming content featuring a person.
func TalentMessage(p store.Person, c catalog.Credit, imageBase string) Message {
	kind := "TV Show"
	if c.MediaType == "movie" {
		kind = "Movie"
	}
	return Message{
		Category: config.CategoryTalentReleases,
		Title:    fmt.Sprintf("New from %s!", p.Name),
		Body:     fmt.Sprintf("%s (%s) — featuring %s", c.Title, kind, p.Name),
		ImageURL: imageURL(imageBase, c.PosterPath),
		Data: map[string]string{
			"type":          TypeTalentRelease,
			"tmdb_id":       catalog.FormatID(c.ID),
			"media_type":    c.MediaType,
			"content_title": c.Title,
			"person_name":   p.Name,
			"person_id":     catalog.FormatID(p.TMDBPersonID),
		},
	}
}

func imageURL(base, path string) string {
	if path == "" {
		return ""
	}
	return base + path
}
