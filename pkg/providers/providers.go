// Package providers holds the registry of streaming embed providers.
// The registry is built once at startup and read-only afterwards, so it
// needs no locking.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"

	"embedgate/pkg/logging"
)

// MediaType identifies the kind of content a provider can serve.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// Mode describes how a provider's embed URLs are addressed.
type Mode string

const (
	// ModePathTMDB providers take TMDB ids in the URL path
	// (/movie/{id}, /tv/{id}/{season}/{episode}).
	ModePathTMDB Mode = "path-tmdb"

	// ModePathMAL providers take MyAnimeList ids ({base}/{malId}/{episode}).
	ModePathMAL Mode = "path-mal"

	// ModePassthrough providers hand over a pre-resolved URL and need no
	// path composition at all.
	ModePassthrough Mode = "passthrough"
)

// ErrUnknownProvider is returned by BySlug for slugs not in the registry.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider describes a single streaming embed site.
type Provider struct {
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	BaseURL        string      `json:"baseUrl"`
	Emoji          string      `json:"emoji"`
	SupportedTypes []MediaType `json:"supportedTypes,omitempty"`
	Mode           Mode        `json:"mode,omitempty"`
}

// Supports reports whether the provider serves the given media type.
// An empty SupportedTypes list means the provider serves everything.
func (p Provider) Supports(t MediaType) bool {
	if len(p.SupportedTypes) == 0 {
		return true
	}
	for _, st := range p.SupportedTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Builtins returns the fixed built-in provider list. Order matters: it is
// the display order, and the first matching provider is the primary one.
func Builtins() []Provider {
	return []Provider{
		{
			Name:    "VidSrc",
			Slug:    "vidsrc",
			BaseURL: "https://vidsrc.to/embed",
			Emoji:   "🎬",
			Mode:    ModePathTMDB,
		},
		{
			Name:    "VidSrc Me",
			Slug:    "vidsrcme",
			BaseURL: "https://vidsrc.me/embed",
			Emoji:   "🎥",
			Mode:    ModePathTMDB,
		},
		// Pro last; it may resolve to embed.su which fails on some hosts.
		{
			Name:    "VidSrc Pro",
			Slug:    "vidsrcpro",
			BaseURL: "https://vidsrc.pro/embed",
			Emoji:   "⭐",
			Mode:    ModePathTMDB,
		},
	}
}

// Registry is an immutable, ordered collection of providers.
type Registry struct {
	list   []Provider
	bySlug map[string]Provider
}

// NewRegistry builds a registry from the given providers. Later duplicates
// of a slug are dropped so that the slug uniqueness invariant holds.
func NewRegistry(provs []Provider) *Registry {
	r := &Registry{
		bySlug: make(map[string]Provider, len(provs)),
	}
	for _, p := range provs {
		if _, dup := r.bySlug[p.Slug]; dup {
			continue
		}
		r.list = append(r.list, p)
		r.bySlug[p.Slug] = p
	}
	return r
}

// Load merges the built-in providers with an optional JSON-encoded external
// list (typically anime providers supplied via the environment). Malformed
// entries are dropped with a warning, never fatal.
func Load(externalJSON string, log *logging.Logger) *Registry {
	provs := Builtins()
	if externalJSON != "" {
		extra, err := ParseExternal(externalJSON)
		if err != nil {
			log.Warn("ignoring external provider list", "error", err)
		} else {
			for _, p := range extra {
				log.Info("registered external provider", "slug", p.Slug, "mode", p.Mode)
			}
			provs = append(provs, extra...)
		}
	}
	return NewRegistry(provs)
}

// ParseExternal decodes a JSON provider list and drops entries missing a
// name, slug, or base URL.
func ParseExternal(raw string) ([]Provider, error) {
	var decoded []Provider
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse provider list: %w", err)
	}

	valid := decoded[:0]
	for _, p := range decoded {
		if p.Name == "" || p.Slug == "" || p.BaseURL == "" {
			continue
		}
		valid = append(valid, p)
	}
	return valid, nil
}

// List returns the providers supporting the given media type, in
// registration order. An empty type returns every provider.
func (r *Registry) List(t MediaType) []Provider {
	if t == "" {
		return append([]Provider(nil), r.list...)
	}
	var out []Provider
	for _, p := range r.list {
		if p.Supports(t) {
			out = append(out, p)
		}
	}
	return out
}

// BySlug looks a provider up by its routing slug.
func (r *Registry) BySlug(slug string) (Provider, error) {
	p, ok := r.bySlug[slug]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, slug)
	}
	return p, nil
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.list)
}
