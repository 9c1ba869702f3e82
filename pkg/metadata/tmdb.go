// Package metadata implements the thin clients for the external metadata
// and id-mapping services. Both are best-effort collaborators: link
// composition must keep working when they do not.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"embedgate/pkg/logging"

	"golang.org/x/time/rate"
)

// Title is the subset of TMDB metadata the link composer needs to feed an
// id-mapping lookup.
type Title struct {
	ID   int
	Name string
	Year int
}

// TMDBClient looks titles up by TMDB id.
type TMDBClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

// NewTMDBClient creates a TMDB client. rps/burst bound the request rate.
func NewTMDBClient(baseURL, apiKey string, rps float64, burst int, log *logging.Logger) *TMDBClient {
	if rps <= 0 {
		rps = 2
	}
	if burst < 1 {
		burst = 1
	}
	return &TMDBClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.WithComponent("tmdb"),
	}
}

type tmdbTitle struct {
	ID           int    `json:"id"`
	TitleField   string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// Lookup fetches the title and year for a TMDB id. mediaType is "movie"
// or "tv".
func (c *TMDBClient) Lookup(ctx context.Context, mediaType string, id int) (Title, error) {
	if c.apiKey == "" {
		return Title{}, fmt.Errorf("tmdb lookup: no API key configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Title{}, err
	}

	url := fmt.Sprintf("%s/%s/%d?api_key=%s", c.baseURL, mediaType, id, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Title{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Title{}, fmt.Errorf("tmdb lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Title{}, fmt.Errorf("tmdb lookup: status %d", resp.StatusCode)
	}

	var raw tmdbTitle
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Title{}, fmt.Errorf("tmdb lookup: %w", err)
	}

	t := Title{ID: raw.ID, Name: raw.TitleField}
	if t.Name == "" {
		t.Name = raw.Name
	}

	date := raw.ReleaseDate
	if date == "" {
		date = raw.FirstAirDate
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			t.Year = y
		}
	}

	return t, nil
}
