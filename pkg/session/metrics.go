package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for session bookkeeping.
var (
	pagesMergedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_pages_merged_total",
		Help: "Pages folded into a session aggregate by outcome (inserted, replaced)",
	}, []string{"outcome"})

	staleCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_stale_completions_total",
		Help: "Fetch completions dropped because their session was torn down",
	})

	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_fetch_failures_total",
		Help: "Fetch completions that failed and left the aggregate unchanged",
	})

	fetchesDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_fetches_dispatched_total",
		Help: "Page fetches dispatched by sessions",
	})
)
