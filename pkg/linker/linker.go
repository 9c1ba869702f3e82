// Package linker composes the outward-facing watch URLs handed to
// clients, either pointing straight at a provider or routed through the
// local unwrapping proxy.
package linker

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"embedgate/pkg/logging"
	"embedgate/pkg/metadata"
	"embedgate/pkg/providers"
)

// Link is one watch option presented to the user.
type Link struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Emoji string `json:"emoji"`
}

// TitleLookup supplies title/year for a TMDB id. Implemented by
// metadata.TMDBClient.
type TitleLookup interface {
	Lookup(ctx context.Context, mediaType string, id int) (metadata.Title, error)
}

// IDMapper resolves a title to external ids. Implemented by
// metadata.AniListClient.
type IDMapper interface {
	FindIDs(ctx context.Context, title string, year int) metadata.IDs
}

// Composer builds provider and proxy URLs from the registry.
type Composer struct {
	reg          *providers.Registry
	proxyEnabled bool
	proxyBase    string
	titles       TitleLookup
	mapper       IDMapper
	log          *logging.Logger
}

// New creates a Composer. titles and mapper may be nil when anime
// augmentation is not needed.
func New(reg *providers.Registry, proxyEnabled bool, proxyBase string, titles TitleLookup, mapper IDMapper, log *logging.Logger) *Composer {
	return &Composer{
		reg:          reg,
		proxyEnabled: proxyEnabled,
		proxyBase:    strings.TrimRight(proxyBase, "/"),
		titles:       titles,
		mapper:       mapper,
		log:          log.WithComponent("linker"),
	}
}

// MediaPath returns the provider-relative path for the given identity.
// Shared with the proxy handler, which reconstructs upstream URLs the
// same way.
func MediaPath(mediaType providers.MediaType, tmdbID, season, episode int) (string, error) {
	switch mediaType {
	case providers.MediaMovie:
		if tmdbID <= 0 {
			return "", fmt.Errorf("tmdb id is required")
		}
		return fmt.Sprintf("/movie/%d", tmdbID), nil
	case providers.MediaTV:
		if tmdbID <= 0 {
			return "", fmt.Errorf("tmdb id is required")
		}
		if season < 1 || episode < 1 {
			return "", fmt.Errorf("season and episode must be positive")
		}
		return fmt.Sprintf("/tv/%d/%d/%d", tmdbID, season, episode), nil
	default:
		return "", fmt.Errorf("unsupported media type %q", mediaType)
	}
}

// BuildMovieURL returns the watch URL for a movie on one provider.
func (c *Composer) BuildMovieURL(p providers.Provider, tmdbID int) (string, error) {
	path, err := MediaPath(providers.MediaMovie, tmdbID, 0, 0)
	if err != nil {
		return "", err
	}
	return c.wrap(p, path), nil
}

// BuildTVURL returns the watch URL for a TV episode on one provider.
func (c *Composer) BuildTVURL(p providers.Provider, tmdbID, season, episode int) (string, error) {
	path, err := MediaPath(providers.MediaTV, tmdbID, season, episode)
	if err != nil {
		return "", err
	}
	return c.wrap(p, path), nil
}

// AllMovieLinks fans out across every movie-capable provider, in registry
// order.
func (c *Composer) AllMovieLinks(tmdbID int) ([]Link, error) {
	path, err := MediaPath(providers.MediaMovie, tmdbID, 0, 0)
	if err != nil {
		return nil, err
	}
	return c.fanOut(providers.MediaMovie, path), nil
}

// AllTVLinks fans out across every tv-capable provider, in registry order.
func (c *Composer) AllTVLinks(tmdbID, season, episode int) ([]Link, error) {
	path, err := MediaPath(providers.MediaTV, tmdbID, season, episode)
	if err != nil {
		return nil, err
	}
	return c.fanOut(providers.MediaTV, path), nil
}

// AnimeTVLinks builds the episode link list for a show that may also be an
// anime: the regular TV fan-out (when a TMDB id is known) plus one link per
// MAL-addressed provider. When malID is zero it is resolved through the
// metadata and id-mapping collaborators; any failure there degrades to the
// base links, logged but never surfaced as an error.
func (c *Composer) AnimeTVLinks(ctx context.Context, tmdbID, season, episode, malID int) []Link {
	var links []Link
	if tmdbID > 0 {
		base, err := c.AllTVLinks(tmdbID, season, episode)
		if err == nil {
			links = base
		} else {
			c.log.Warn("skipping base tv links", "tmdb_id", tmdbID, "error", err)
		}
	}

	var animeProvs []providers.Provider
	for _, p := range c.reg.List(providers.MediaTV) {
		if p.Mode == providers.ModePathMAL {
			animeProvs = append(animeProvs, p)
		}
	}
	if len(animeProvs) == 0 {
		return links
	}

	if malID == 0 {
		malID = c.resolveMALID(ctx, tmdbID)
		if malID == 0 {
			// Anime providers are omitted rather than guessed at.
			return links
		}
	}

	for _, p := range animeProvs {
		embed := fmt.Sprintf("%s/%d/%d", strings.TrimRight(p.BaseURL, "/"), malID, episode)
		target := embed
		if c.proxyEnabled {
			// MAL-addressed providers ride through the proxy's direct-url
			// bypass: the embed URL is already fully composed here.
			target = fmt.Sprintf("%s/proxy/%s/tv?url=%s", c.proxyBase, p.Slug, url.QueryEscape(embed))
		}
		links = append(links, Link{Name: p.Name, URL: target, Emoji: p.Emoji})
	}

	return links
}

// resolveMALID maps a TMDB id to a MAL id via title+year. Returns 0 when
// the mapping cannot be established.
func (c *Composer) resolveMALID(ctx context.Context, tmdbID int) int {
	if tmdbID <= 0 || c.titles == nil || c.mapper == nil {
		return 0
	}

	title, err := c.titles.Lookup(ctx, string(providers.MediaTV), tmdbID)
	if err != nil {
		c.log.Warn("title lookup failed, anime providers omitted", "tmdb_id", tmdbID, "error", err)
		return 0
	}

	ids := c.mapper.FindIDs(ctx, title.Name, title.Year)
	if ids.MALID == 0 {
		c.log.Debug("no MAL id for title", "title", title.Name, "year", title.Year)
	}
	return ids.MALID
}

func (c *Composer) fanOut(t providers.MediaType, path string) []Link {
	var links []Link
	for _, p := range c.reg.List(t) {
		if p.Mode == providers.ModePathMAL {
			// MAL-addressed providers cannot take TMDB paths.
			continue
		}
		links = append(links, Link{Name: p.Name, URL: c.wrap(p, path), Emoji: p.Emoji})
	}
	return links
}

// wrap routes a provider path through the proxy when it is enabled.
func (c *Composer) wrap(p providers.Provider, path string) string {
	if c.proxyEnabled {
		return fmt.Sprintf("%s/proxy/%s%s", c.proxyBase, p.Slug, path)
	}
	return strings.TrimRight(p.BaseURL, "/") + path
}
