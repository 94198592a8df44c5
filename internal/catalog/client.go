// Package catalog provides the read-only client for the external content
// catalog (TMDB) and the fact extraction applied to its responses.
//
// The client does no pacing of its own: the batch orchestrator spaces calls
// through internal/pacer so one interval governs a whole run.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTimeout = 15 * time.Second

// StatusError is returned when the catalog answers with a non-2xx status.
// The orchestrator treats it as a skippable per-entity failure.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s returned %d: %s", e.Path, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError carrying the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client is the HTTP client for catalog endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	region     string
	logger     *slog.Logger
}

// NewClient creates a catalog client. region selects which country block of
// the watch/providers response is read.
func NewClient(baseURL, apiKey, region string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if region == "" {
		region = "US"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		region:     region,
		logger:     logger,
	}
}

// ProvidersFor returns the streaming providers currently listed for a title.
func (c *Client) ProvidersFor(ctx context.Context, mediaType string, id int) (ProviderSet, error) {
	var resp watchProvidersResponse
	path := fmt.Sprintf("/%s/%d/watch/providers", mediaType, id)
	if err := c.get(ctx, path, &resp); err != nil {
		return ProviderSet{}, err
	}

	set := ProviderSet{Region: c.region, ByCategory: make(map[string][]Provider)}
	region, ok := resp.Results[c.region]
	if !ok {
		return set, nil
	}
	for _, category := range ProviderCategories {
		for _, p := range region.category(category) {
			set.ByCategory[category] = append(set.ByCategory[category], Provider{
				ID:       p.ProviderID,
				Name:     p.ProviderName,
				LogoPath: deref(p.LogoPath),
				Type:     category,
			})
		}
	}
	return set, nil
}

// CreditsFor returns the combined cast and crew credits of a person.
func (c *Client) CreditsFor(ctx context.Context, personID int) (CreditSet, error) {
	var resp combinedCreditsResponse
	path := fmt.Sprintf("/person/%d/combined_credits", personID)
	if err := c.get(ctx, path, &resp); err != nil {
		return CreditSet{}, err
	}

	set := CreditSet{
		Cast: make([]Credit, 0, len(resp.Cast)),
		Crew: make([]Credit, 0, len(resp.Crew)),
	}
	for _, r := range resp.Cast {
		set.Cast = append(set.Cast, r.toCredit())
	}
	for _, r := range resp.Crew {
		set.Crew = append(set.Crew, r.toCredit())
	}
	return set, nil
}

// get performs a GET request against the catalog and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, out any) error {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("catalog request", "path", path, "status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Code: resp.StatusCode, Body: truncate(body, 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Wire shapes
// --------------------------------------------------------------------------

type wireProvider struct {
	ProviderID   int     `json:"provider_id"`
	ProviderName string  `json:"provider_name"`
	LogoPath     *string `json:"logo_path"`
}

type wireRegion struct {
	Flatrate []wireProvider `json:"flatrate"`
	Free     []wireProvider `json:"free"`
	Rent     []wireProvider `json:"rent"`
	Buy      []wireProvider `json:"buy"`
}

func (r wireRegion) category(name string) []wireProvider {
	switch name {
	case CategoryFlatrate:
		return r.Flatrate
	case CategoryFree:
		return r.Free
	case CategoryRent:
		return r.Rent
	case CategoryBuy:
		return r.Buy
	}
	return nil
}

type watchProvidersResponse struct {
	ID      int                   `json:"id"`
	Results map[string]wireRegion `json:"results"`
}

type wireCredit struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	MediaType    string  `json:"media_type"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   *string `json:"poster_path"`
	Job          string  `json:"job"`
}

func (w wireCredit) toCredit() Credit {
	title := w.Title
	if title == "" {
		title = w.Name
	}
	if title == "" {
		title = "Unknown"
	}
	date := w.ReleaseDate
	if date == "" {
		date = w.FirstAirDate
	}
	return Credit{
		ID:          w.ID,
		Title:       title,
		MediaType:   NormalizeMediaType(w.MediaType),
		ReleaseDate: date,
		PosterPath:  deref(w.PosterPath),
		Job:         w.Job,
	}
}

type combinedCreditsResponse struct {
	Cast []wireCredit `json:"cast"`
	Crew []wireCredit `json:"crew"`
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatID renders a catalog id for string-only payloads.
func FormatID(id int) string {
	return strconv.Itoa(id)
}
