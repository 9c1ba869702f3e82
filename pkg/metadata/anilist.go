package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"embedgate/pkg/logging"

	"golang.org/x/time/rate"
)

// IDs holds the identifiers the id-mapping service can resolve for a
// title. Zero values mean "not found".
type IDs struct {
	AniListID int
	MALID     int
}

// AniListClient maps a title and year to AniList/MyAnimeList ids via the
// AniList GraphQL API.
type AniListClient struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

// NewAniListClient creates an id-mapping client against the given GraphQL
// endpoint.
func NewAniListClient(url string, rps float64, burst int, log *logging.Logger) *AniListClient {
	if rps <= 0 {
		rps = 2
	}
	if burst < 1 {
		burst = 1
	}
	return &AniListClient{
		url:     url,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.WithComponent("anilist"),
	}
}

const findIDsQuery = `query ($search: String, $year: Int) {
  Page(page: 1, perPage: 1) {
    media(search: $search, type: ANIME, seasonYear: $year) {
      id
      idMal
    }
  }
}`

type anilistResponse struct {
	Data struct {
		Page struct {
			Media []struct {
				ID    int `json:"id"`
				IDMal int `json:"idMal"`
			} `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

// FindIDs resolves a title (and optional year, 0 meaning unknown) to
// AniList and MAL ids. Any failure is logged and returns zero IDs; the
// mapping is strictly best-effort.
func (c *AniListClient) FindIDs(ctx context.Context, title string, year int) IDs {
	if title == "" {
		return IDs{}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return IDs{}
	}

	variables := map[string]any{"search": title}
	if year > 0 {
		variables["year"] = year
	}

	payload, err := json.Marshal(map[string]any{
		"query":     findIDsQuery,
		"variables": variables,
	})
	if err != nil {
		return IDs{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return IDs{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("id mapping lookup failed", "title", title, "error", err)
		return IDs{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("id mapping lookup failed", "title", title, "status", resp.StatusCode)
		return IDs{}
	}

	var decoded anilistResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.log.Warn("id mapping response unreadable", "title", title, "error", err)
		return IDs{}
	}

	media := decoded.Data.Page.Media
	if len(media) == 0 {
		return IDs{}
	}
	return IDs{AniListID: media[0].ID, MALID: media[0].IDMal}
}
