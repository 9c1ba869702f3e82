// Package resolver implements recursive iframe unwrapping: following
// nested embed wrapper pages down to the innermost player URL.
package resolver

import (
	"context"
	"regexp"
	"time"

	"embedgate/pkg/logging"
	"embedgate/pkg/metrics"
	"embedgate/pkg/urlutil"
)

// PageFetcher retrieves the body of an embed page. Satisfied by
// fetch.Client; stubbed in tests.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// First iframe only. Upstream pages are untrusted and ad wrappers often
// nest several iframes; taking the first matches observed wrapper
// behavior, so this stays a regex rather than a full HTML parse.
var iframeRe = regexp.MustCompile(`(?i)<iframe[^>]+src=["']([^"']+)["']`)

// Direct media files must not be fetched as if they were HTML pages.
// The extension list is deliberately frozen.
var directStreamRe = regexp.MustCompile(`(?i)\.(m3u8|mp4|webm|mkv)(\?|$)`)

// IsDirectStream reports whether the URL points at a raw media file
// rather than an embed page.
func IsDirectStream(rawURL string) bool {
	return directStreamRe.MatchString(rawURL)
}

// Resolver unwraps nested iframe wrapper pages.
type Resolver struct {
	fetcher  PageFetcher
	log      *logging.Logger
	maxDepth int
	timeout  time.Duration
}

// New creates a Resolver. maxDepth bounds the iframe chain (values < 1
// fall back to 3); timeout applies to each individual page fetch.
func New(fetcher PageFetcher, log *logging.Logger, maxDepth int, timeout time.Duration) *Resolver {
	if maxDepth < 1 {
		maxDepth = 3
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Resolver{
		fetcher:  fetcher,
		log:      log.WithComponent("resolver"),
		maxDepth: maxDepth,
		timeout:  timeout,
	}
}

// Resolve follows nested iframes starting at target and returns the
// innermost URL it could reach. It never fails: a fetch error at any depth
// degrades to the URL that was being fetched, since an ad-laden embed
// still plays where an error page does not.
func (r *Resolver) Resolve(ctx context.Context, target string) string {
	current := target

	for depth := 0; ; depth++ {
		if depth > r.maxDepth {
			r.log.Warn("max iframe depth reached", "url", current, "depth", depth)
			metrics.ResolveTotal.WithLabelValues("depth_limit").Inc()
			metrics.UnwrapDepth.Observe(float64(depth))
			return current
		}

		fctx, cancel := context.WithTimeout(ctx, r.timeout)
		body, err := r.fetcher.FetchPage(fctx, current)
		cancel()
		if err != nil {
			// Fall back to the best known URL; never a hard error.
			r.log.Warn("iframe unwrap fetch failed", "url", current, "depth", depth, "error", err)
			metrics.FetchFailures.Inc()
			metrics.ResolveTotal.WithLabelValues("degraded").Inc()
			metrics.UnwrapDepth.Observe(float64(depth))
			return current
		}

		m := iframeRe.FindSubmatch(body)
		if m == nil {
			r.log.Debug("no iframe found, page is terminal", "url", current, "depth", depth)
			metrics.ResolveTotal.WithLabelValues("terminal").Inc()
			metrics.UnwrapDepth.Observe(float64(depth))
			return current
		}

		next := urlutil.ResolveURL(string(m[1]), current)
		r.log.Debug("found nested iframe", "depth", depth, "url", next)
		current = next
	}
}
