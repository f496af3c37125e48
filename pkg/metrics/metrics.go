// Package metrics exposes the Prometheus registry used by the feed packages.
// All metrics are defined in their respective packages (source, session,
// scroll, ratelimit) to keep those packages self-contained.
//
// This package serves them and documents what is available.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the feed packages.
// All metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Source Metrics (pkg/source):
//   - feed_source_requests_total{status} (Counter): Upstream page requests by HTTP status, "network_error" or "blocked"
//   - feed_source_request_duration_seconds (Histogram): Upstream request duration
//   - feed_source_errors_total{class} (Counter): Failed fetches by class (client, server, rate_limit, network, decode)
//
// Session Metrics (pkg/session):
//   - feed_fetches_dispatched_total (Counter): Page fetches dispatched by sessions
//   - feed_pages_merged_total{outcome} (Counter): Pages merged by outcome (inserted, replaced)
//   - feed_stale_completions_total (Counter): Completions dropped after teardown
//   - feed_fetch_failures_total (Counter): Completions that left the aggregate unchanged
//
// Scroll Metrics (pkg/scroll):
//   - feed_scroll_loads_total (Counter): Next-page loads requested by the sentinel
//   - feed_scroll_suppressed_total{reason} (Counter): Sentinel signals ignored (loading, no_next_page, nothing_loaded)
//
// Upstream Rate Limit Metrics (pkg/ratelimit):
//   - feed_upstream_requests_remaining (Gauge): Requests remaining in the upstream window
//   - feed_upstream_blocks_total (Counter): Requests refused because the budget is exhausted
//   - feed_upstream_throttles_total (Counter): Requests delayed because the budget is low
//
// Example Prometheus Queries:
//
//   # Fetch failure ratio
//   rate(feed_fetch_failures_total[5m]) / rate(feed_fetches_dispatched_total[5m])
//
//   # Stale completions (users leaving while pages load)
//   rate(feed_stale_completions_total[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(feed_source_request_duration_seconds_bucket[5m]))
//
//   # Upstream budget low
//   feed_upstream_requests_remaining < 10
