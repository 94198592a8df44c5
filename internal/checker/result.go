package checker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/albapepper/streamwatch/internal/store"
)

// EntityResult summarises one successfully processed entity.
type EntityResult struct {
	Kind          store.EventKind
	ID            int
	Name          string
	New           int // facts the diff reported as new
	Recorded      int // events this run created
	Notifications int
	CachedCount   int // size of the replaced snapshot (titles only)
}

// MarshalJSON renders the per-kind summary shape clients already consume.
func (r EntityResult) MarshalJSON() ([]byte, error) {
	if r.Kind == store.KindTalent {
		return json.Marshal(struct {
			PersonID      int    `json:"person_id"`
			PersonName    string `json:"person_name"`
			NewContent    int    `json:"new_content"`
			Notifications int    `json:"notifications"`
		}{r.ID, r.Name, r.New, r.Notifications})
	}
	return json.Marshal(struct {
		Title         string `json:"title"`
		TMDBID        int    `json:"tmdb_id"`
		NewProviders  int    `json:"new_providers"`
		CachedCount   int    `json:"cached_count"`
		Notifications int    `json:"notifications"`
	}{r.Name, r.ID, r.New, r.CachedCount, r.Notifications})
}

// RunResult tracks counts and errors from one batch run.
type RunResult struct {
	Kind              store.EventKind
	Candidates        int
	Checked           int
	Skipped           int
	Detected          int
	Recorded          int
	NotificationsSent int
	Results           []EntityResult
	Errors            []string
	Duration          time.Duration
}

// Add merges a successfully processed entity.
func (r *RunResult) Add(er EntityResult) {
	r.Checked++
	r.Detected += er.New
	r.Recorded += er.Recorded
	r.NotificationsSent += er.Notifications
	r.Results = append(r.Results, er)
}

// Skip records a failed entity. Work it completed before failing (events
// recorded, deliveries made) still counts toward the totals.
func (r *RunResult) Skip(er EntityResult, err error) {
	r.Skipped++
	r.Recorded += er.Recorded
	r.NotificationsSent += er.Notifications
	r.AddErrorf("%d: %v", er.ID, err)
}

// AddErrorf records a formatted error message.
func (r *RunResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"kind=%s candidates=%d checked=%d skipped=%d detected=%d recorded=%d notifications=%d duration=%s",
		r.Kind, r.Candidates, r.Checked, r.Skipped,
		r.Detected, r.Recorded, r.NotificationsSent, r.Duration.Round(time.Millisecond),
	)
}
