package catalog

import (
	"testing"
	"time"
)

func TestMergedCategoryPrecedence(t *testing.T) {
	t.Parallel()

	set := ProviderSet{ByCategory: map[string][]Provider{
		CategoryBuy:      {{ID: 3, Name: "Vudu", Type: CategoryBuy}},
		CategoryRent:     {{ID: 1, Name: "Max", Type: CategoryRent}, {ID: 3, Name: "Vudu", Type: CategoryRent}},
		CategoryFlatrate: {{ID: 1, Name: "Max", Type: CategoryFlatrate}},
	}}

	got := set.Merged()
	want := []Provider{
		{ID: 1, Name: "Max", Type: CategoryFlatrate},
		{ID: 3, Name: "Vudu", Type: CategoryRent},
	}
	if len(got) != len(want) {
		t.Fatalf("Merged() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Merged()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRelevantCredits(t *testing.T) {
	t.Parallel()

	set := CreditSet{
		Cast: []Credit{
			{ID: 1, MediaType: "movie", Title: "A"},
			{ID: 1, MediaType: "movie", Title: "A (again)"},
			{ID: 1, MediaType: "tv", Title: "A the series"},
		},
		Crew: []Credit{
			{ID: 1, MediaType: "movie", Job: "Director"},
			{ID: 2, MediaType: "movie", Job: "Executive Producer"},
			{ID: 3, MediaType: "movie", Job: "Editor"},
		},
	}

	got := set.Relevant()
	if len(got) != 3 {
		t.Fatalf("Relevant() len = %d, want 3: %+v", len(got), got)
	}
	if got[0].Title != "A" {
		t.Errorf("first occurrence should win, got %q", got[0].Title)
	}
	if KeyOf(got[1]) != (CreditKey{ContentID: 1, MediaType: "tv"}) {
		t.Errorf("tv credit with same id should be kept, got %+v", got[1])
	}
	if got[2].ID != 2 {
		t.Errorf("executive producer credit missing, got %+v", got[2])
	}
}

func TestIsNewContent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	window := 90 * 24 * time.Hour

	tests := []struct {
		name string
		date string
		want bool
	}{
		{name: "upcoming", date: "2027-01-01", want: true},
		{name: "recent", date: "2026-09-01", want: true},
		{name: "old", date: "2025-01-01", want: false},
		{name: "undated", date: "", want: false},
		{name: "malformed", date: "soon", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Credit{ReleaseDate: tt.date}
			if got := c.IsNewContent(now, window); got != tt.want {
				t.Errorf("IsNewContent(%q) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestNormalizeMediaType(t *testing.T) {
	t.Parallel()

	if NormalizeMediaType("movie") != "movie" {
		t.Error("movie should stay movie")
	}
	for _, in := range []string{"tv", "", "person"} {
		if got := NormalizeMediaType(in); got != "tv" {
			t.Errorf("NormalizeMediaType(%q) = %q, want tv", in, got)
		}
	}
}
