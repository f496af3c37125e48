// Package scroll turns sentinel visibility into next-page requests.
package scroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for scroll-driven loads.
var (
	scrollLoadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_scroll_loads_total",
		Help: "Total next-page loads requested by the scroll trigger",
	})

	scrollSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_scroll_suppressed_total",
		Help: "Sentinel signals that did not request a page, by reason",
	}, []string{"reason"})
)

// State is the trigger state.
type State int

const (
	// Idle: the sentinel is hidden or there is nothing more to load.
	Idle State = iota

	// Armed: the sentinel is visible, a next page exists and nothing is in flight.
	Armed

	// Loading: at least one fetch is in flight; visibility signals are ignored.
	Loading
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// Progress exposes the aggregate fields the trigger decides on.
// *feed.Aggregator satisfies it.
type Progress interface {
	HasNextPage() bool
	LastLoadedPage() (page int, ok bool)
}

// Navigator requests a page. It is the only way the trigger loads data.
type Navigator interface {
	GoTo(page int) error
}

// Trigger is the Idle/Armed/Loading state machine behind infinite scrolling.
// It is not safe for concurrent use.
type Trigger struct {
	progress Progress
	nav      Navigator
	logger   zerolog.Logger

	state    State
	visible  bool
	inFlight int
}

// NewTrigger creates an idle trigger.
func NewTrigger(progress Progress, nav Navigator, logger zerolog.Logger) *Trigger {
	if progress == nil || nav == nil {
		panic("progress and navigator are required")
	}
	return &Trigger{
		progress: progress,
		nav:      nav,
		logger:   logger,
		state:    Idle,
	}
}

// State returns the current state.
func (t *Trigger) State() State {
	return t.state
}

// Loading reports whether a fetch is in flight.
func (t *Trigger) Loading() bool {
	return t.inFlight > 0
}

// SentinelVisible handles the sentinel entering the visible region.
// It returns true when a next-page navigation was issued.
func (t *Trigger) SentinelVisible() bool {
	t.visible = true

	if t.state == Loading {
		scrollSuppressedTotal.WithLabelValues("loading").Inc()
		return false
	}
	if !t.progress.HasNextPage() {
		t.setState(Idle)
		scrollSuppressedTotal.WithLabelValues("no_next_page").Inc()
		return false
	}

	t.setState(Armed)

	last, ok := t.progress.LastLoadedPage()
	if !ok {
		// Nothing loaded yet, so there is no page to continue from.
		scrollSuppressedTotal.WithLabelValues("nothing_loaded").Inc()
		return false
	}

	next := last + 1
	if err := t.nav.GoTo(next); err != nil {
		t.logger.Warn().Err(err).Int("page", next).Msg("Next page navigation failed")
		return false
	}

	// The navigation normally dispatched a fetch through Begin already.
	if t.inFlight == 0 {
		t.setState(Loading)
	}
	scrollLoadsTotal.Inc()
	return true
}

// SentinelHidden handles the sentinel leaving the visible region.
func (t *Trigger) SentinelHidden() {
	t.visible = false
	if t.state == Armed {
		t.setState(Idle)
	}
}

// Begin records that a fetch was dispatched.
func (t *Trigger) Begin() {
	t.inFlight++
	t.setState(Loading)
}

// Complete records that a dispatched fetch finished, successfully or not.
// The trigger re-arms when the sentinel is still visible and a next page
// exists, but it never starts a load by itself.
func (t *Trigger) Complete() {
	if t.inFlight > 0 {
		t.inFlight--
	}
	if t.inFlight > 0 {
		return
	}

	if t.visible && t.progress.HasNextPage() {
		t.setState(Armed)
		return
	}
	t.setState(Idle)
}

func (t *Trigger) setState(next State) {
	if t.state == next {
		return
	}
	t.logger.Debug().
		Str("from", t.state.String()).
		Str("state", next.String()).
		Int("in_flight", t.inFlight).
		Msg("Scroll trigger transition")
	t.state = next
}
