// Package metrics exposes Prometheus instrumentation for the resolver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolveTotal counts unwrap outcomes. "terminal" means a page with no
	// iframe was reached, "depth_limit" that the recursion ceiling cut the
	// chain, "degraded" that a fetch failure fell back to the last known
	// URL, and "direct" that a direct-stream URL skipped unwrapping.
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embedgate",
		Name:      "resolve_total",
		Help:      "Iframe unwrap resolutions by outcome.",
	}, []string{"outcome"})

	// UnwrapDepth observes how many nested iframes were followed.
	UnwrapDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "embedgate",
		Name:      "unwrap_depth",
		Help:      "Nested iframe depth reached per resolution.",
		Buckets:   []float64{0, 1, 2, 3, 4},
	})

	// FetchFailures counts upstream fetch errors during unwrapping.
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "embedgate",
		Name:      "fetch_failures_total",
		Help:      "Upstream fetch failures during iframe unwrapping.",
	})

	// ProxyRequests counts proxied watch requests by response format.
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embedgate",
		Name:      "proxy_requests_total",
		Help:      "Proxy watch requests by response format.",
	}, []string{"format"})
)

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
