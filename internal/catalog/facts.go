package catalog

import "time"

// Provider categories in precedence order. When a provider is listed under
// several categories the first one here is the one recorded.
const (
	CategoryFlatrate = "flatrate"
	CategoryFree     = "free"
	CategoryRent     = "rent"
	CategoryBuy      = "buy"
)

var ProviderCategories = []string{CategoryFlatrate, CategoryFree, CategoryRent, CategoryBuy}

// Crew jobs that count as a talent credit alongside every cast credit.
var relevantCrewJobs = map[string]bool{
	"Director":           true,
	"Executive Producer": true,
}

const releaseDateLayout = "2006-01-02"

// Provider is one streaming provider fact for a title.
type Provider struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	LogoPath string `json:"logo_path,omitempty"`
	Type     string `json:"type"`
}

// ProviderKey returns the merge and diff key of a provider.
func ProviderKey(p Provider) int { return p.ID }

// ProviderSet is the raw per-category listing for one region.
type ProviderSet struct {
	Region     string
	ByCategory map[string][]Provider
}

// Merged flattens the categories into one list keyed by provider id. The
// first category (in ProviderCategories order) naming a provider wins and
// later listings of the same provider are ignored.
func (s ProviderSet) Merged() []Provider {
	seen := make(map[int]bool)
	var out []Provider
	for _, category := range ProviderCategories {
		for _, p := range s.ByCategory[category] {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}

// Credit is one content credit for a person.
type Credit struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	MediaType   string `json:"media_type"`
	ReleaseDate string `json:"release_date,omitempty"`
	PosterPath  string `json:"poster_path,omitempty"`
	Job         string `json:"job,omitempty"`
}

// CreditKey is the natural key of a credit: content id plus media kind.
type CreditKey struct {
	ContentID int
	MediaType string
}

// KeyOf returns the natural key of a credit.
func KeyOf(c Credit) CreditKey {
	return CreditKey{ContentID: c.ID, MediaType: c.MediaType}
}

// Released returns the parsed release date, ok=false when absent or malformed.
func (c Credit) Released() (time.Time, bool) {
	if c.ReleaseDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(releaseDateLayout, c.ReleaseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsNewContent reports whether a credit was released within window before
// now, or is still upcoming. Undated credits are never new.
func (c Credit) IsNewContent(now time.Time, window time.Duration) bool {
	released, ok := c.Released()
	if !ok {
		return false
	}
	return !released.Before(now.Add(-window))
}

// CreditSet is the raw combined-credits listing for a person.
type CreditSet struct {
	Cast []Credit
	Crew []Credit
}

// Relevant returns every cast credit plus the director / executive producer
// crew credits, deduplicated by natural key (first occurrence wins).
func (s CreditSet) Relevant() []Credit {
	seen := make(map[CreditKey]bool)
	out := make([]Credit, 0, len(s.Cast))
	add := func(c Credit) {
		k := KeyOf(c)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, c)
	}
	for _, c := range s.Cast {
		add(c)
	}
	for _, c := range s.Crew {
		if relevantCrewJobs[c.Job] {
			add(c)
		}
	}
	return out
}

// Recent filters credits to new or upcoming content.
func Recent(credits []Credit, now time.Time, window time.Duration) []Credit {
	var out []Credit
	for _, c := range credits {
		if c.IsNewContent(now, window) {
			out = append(out, c)
		}
	}
	return out
}

// NormalizeMediaType maps catalog media kinds onto "movie" or "tv".
func NormalizeMediaType(mediaType string) string {
	if mediaType == "movie" {
		return "movie"
	}
	return "tv"
}
