// Package proxy provides the HTTP handlers for the iframe-unwrapping
// proxy: watch-link routes, health checks, and the player wrapper page.
package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"embedgate/pkg/linker"
	"embedgate/pkg/logging"
	"embedgate/pkg/metrics"
	"embedgate/pkg/providers"
	"embedgate/pkg/resolver"
)

// Handlers serves the proxy routes.
type Handlers struct {
	reg      *providers.Registry
	resolver *resolver.Resolver
	log      *logging.Logger
}

// NewHandlers creates the proxy handler set.
func NewHandlers(reg *providers.Registry, res *resolver.Resolver, log *logging.Logger) *Handlers {
	return &Handlers{
		reg:      reg,
		resolver: res,
		log:      log.WithComponent("proxy"),
	}
}

// RegisterRoutes registers the proxy routes. Patterns are method-less on
// purpose: non-GET methods must get a JSON 405, not the mux default.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/proxy/", h.handleProxy)
}

// handleRoot answers health probes on the bare root and /health.
func (h *Handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.URL.Path == "/" || r.URL.Path == "/health" {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	h.writeError(w, http.StatusNotFound, "Not found")
}

// handleProxy parses /proxy/{slug}/{mediaType}/..., reconstructs the
// upstream embed URL (or takes it from the url query parameter), unwraps
// it, and serves the result in the requested format.
//
// Path segments are split by hand rather than captured by mux patterns so
// that the direct-url bypass works without id segments.
func (h *Handlers) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	segments := splitPath(r.URL.Path) // [proxy, slug, type, ...]
	if len(segments) < 3 {
		h.writeError(w, http.StatusBadRequest, "Invalid proxy route")
		return
	}
	slug := segments[1]
	mediaType := providers.MediaType(segments[2])

	var streamURL string

	if direct := r.URL.Query().Get("url"); direct != "" {
		// Pre-resolved target: skip provider and id parsing entirely.
		if resolver.IsDirectStream(direct) {
			h.log.Debug("direct stream detected, skipping unwrap", "url", direct)
			metrics.ResolveTotal.WithLabelValues("direct").Inc()
			streamURL = direct
		} else {
			streamURL = h.resolver.Resolve(r.Context(), direct)
		}
	} else {
		target, status, err := h.reconstruct(slug, mediaType, segments[3:])
		if err != nil {
			h.writeError(w, status, err.Error())
			return
		}
		streamURL = h.resolver.Resolve(r.Context(), target)
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	metrics.ProxyRequests.WithLabelValues(format).Inc()

	switch format {
	case "json":
		h.writeJSON(w, http.StatusOK, map[string]string{"url": streamURL})
	case "redirect":
		w.Header().Set("Location", streamURL)
		w.WriteHeader(http.StatusFound)
	default:
		h.writePlayerPage(w, streamURL)
	}
}

// reconstruct composes the upstream embed URL for a path-addressed
// request. The returned status is the HTTP status to use on error:
// missing or malformed ids are the caller's fault (400), while an unknown
// provider surfaces as an upstream composition failure (502).
func (h *Handlers) reconstruct(slug string, mediaType providers.MediaType, ids []string) (string, int, error) {
	var tmdbID, season, episode int

	switch mediaType {
	case providers.MediaMovie:
		if len(ids) < 1 {
			return "", http.StatusBadRequest, fmt.Errorf("TMDB ID required")
		}
		n, err := strconv.Atoi(ids[0])
		if err != nil || n <= 0 {
			return "", http.StatusBadRequest, fmt.Errorf("TMDB ID must be numeric")
		}
		tmdbID = n
	case providers.MediaTV:
		if len(ids) < 3 {
			return "", http.StatusBadRequest, fmt.Errorf("TMDB ID, season, and episode required")
		}
		nums := make([]int, 3)
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(ids[i])
			if err != nil || n <= 0 {
				return "", http.StatusBadRequest, fmt.Errorf("TMDB ID, season, and episode must be numeric")
			}
			nums[i] = n
		}
		tmdbID, season, episode = nums[0], nums[1], nums[2]
	default:
		return "", http.StatusBadRequest, fmt.Errorf("Unsupported media type")
	}

	prov, err := h.reg.BySlug(slug)
	if err != nil {
		return "", http.StatusBadGateway, err
	}

	path, err := linker.MediaPath(mediaType, tmdbID, season, episode)
	if err != nil {
		return "", http.StatusBadRequest, err
	}

	return strings.TrimRight(prov.BaseURL, "/") + path, http.StatusOK, nil
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writePlayerPage serves the self-contained full-viewport player wrapper.
// The embedded script forwards postMessage fullscreen requests from the
// player iframe to the browser fullscreen API.
func (h *Handlers) writePlayerPage(w http.ResponseWriter, streamURL string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.WriteHeader(http.StatusOK)

	escaped := strings.ReplaceAll(streamURL, `"`, "&quot;")
	fmt.Fprintf(w, playerPage, escaped)
}

const playerPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0, user-scalable=no">
    <meta name="mobile-web-app-capable" content="yes">
    <title>Streaming Player</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        html, body {
            width: 100%%;
            height: 100%%;
            overflow: hidden;
            background: #000;
        }
        #player-container {
            position: fixed;
            top: 0;
            left: 0;
            width: 100%%;
            height: 100%%;
            z-index: 1;
        }
        #player {
            width: 100%%;
            height: 100%%;
            border: none;
            display: block;
        }
        #player-container:-webkit-full-screen { width: 100%%; height: 100%%; }
        #player-container:-moz-full-screen { width: 100%%; height: 100%%; }
        #player-container:-ms-fullscreen { width: 100%%; height: 100%%; }
        #player-container:fullscreen { width: 100%%; height: 100%%; }
    </style>
</head>
<body>
    <div id="player-container">
        <iframe
            id="player"
            src="%s"
            allow="autoplay; encrypted-media; fullscreen; picture-in-picture; web-share"
            allowfullscreen
            webkitallowfullscreen
            mozallowfullscreen
            msallowfullscreen
            scrolling="no"
            frameborder="0"
            referrerpolicy="no-referrer-when-downgrade">
        </iframe>
    </div>
    <script>
        const container = document.getElementById('player-container');
        const player = document.getElementById('player');

        function requestFullscreen() {
            if (container.requestFullscreen) {
                container.requestFullscreen().catch(() => {});
            } else if (container.webkitRequestFullscreen) {
                container.webkitRequestFullscreen();
            } else if (container.mozRequestFullScreen) {
                container.mozRequestFullScreen();
            } else if (container.msRequestFullscreen) {
                container.msRequestFullscreen();
            }
        }

        window.addEventListener('message', function(event) {
            if (event.data === 'requestFullscreen' || event.data.type === 'requestFullscreen') {
                requestFullscreen();
            }
        });

        function resizePlayer() {
            player.style.width = '100%%';
            player.style.height = '100%%';
        }

        window.addEventListener('resize', resizePlayer);
        resizePlayer();
    </script>
</body>
</html>`
