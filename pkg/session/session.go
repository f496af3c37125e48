// Package session binds the feed aggregate, the address navigator and the
// scroll trigger to a page source for one mounted view.
//
// A Session never performs I/O itself. Methods that may request data return
// Fetch commands; the owner runs them (concurrently if it likes) and hands
// every resulting Completion back to Apply on the goroutine that owns the
// session. Loop is a ready-made owner.
package session

import (
	"context"
	"errors"

	"github.com/Sternrassler/scrollfeed/pkg/feed"
	"github.com/Sternrassler/scrollfeed/pkg/logging"
	"github.com/Sternrassler/scrollfeed/pkg/navigation"
	"github.com/Sternrassler/scrollfeed/pkg/scroll"
	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned when an operation reaches a torn down session.
var ErrSessionClosed = errors.New("session closed")

// Link is a navigable address for a page.
type Link struct {
	Page    int
	Address string
}

// View is what a renderer needs to draw the session.
type View struct {
	// Pending is true until the first page has been merged. Records is empty
	// while pending.
	Pending bool

	// Records in page order.
	Records []feed.Record

	// ShowSentinel is true exactly when a next page exists.
	ShowSentinel bool

	// LoadPrevious points at the page before the lowest loaded one, or is
	// nil when page 1 is already the lowest.
	LoadPrevious *Link

	// Address is the current address.
	Address string

	// Loading is true while any fetch is in flight.
	Loading bool
}

// Fetch is a page request dispatched by a session.
type Fetch struct {
	// Page to fetch.
	Page int

	// Address that requested the page.
	Address string

	session *Session
	token   feed.Token
	source  feed.Source
}

// Run fetches the page under the session context. It blocks and may be
// called from any goroutine.
func (f Fetch) Run() Completion {
	result, err := f.source.FetchPage(f.token.Context(), f.Page)
	return Completion{
		Page:    f.Page,
		Result:  result,
		Err:     err,
		session: f.session,
		token:   f.token,
	}
}

// Completion is the outcome of a Fetch.
type Completion struct {
	Page   int
	Result *feed.PageResult
	Err    error

	session *Session
	token   feed.Token
}

// Option configures a Session.
type Option func(*options)

type options struct {
	ctx    context.Context
	logger *zerolog.Logger
}

// WithContext sets the parent of the session context. Cancelling it has the
// same effect on fetches as Teardown.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// Session is one mounted feed view. It is not safe for concurrent use.
type Session struct {
	source  feed.Source
	token   feed.Token
	cancel  context.CancelFunc
	agg     *feed.Aggregator
	nav     *navigation.Navigator
	trigger *scroll.Trigger
	logger  zerolog.Logger

	mounted bool
	closed  bool
	queued  []Fetch
}

// New creates a session for address. Nothing is fetched before Mount.
func New(source feed.Source, address string, opts ...Option) *Session {
	if source == nil {
		panic("source cannot be nil")
	}

	o := options{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.NewLogger("session")
	if o.logger != nil {
		logger = *o.logger
	}

	s := &Session{
		source: source,
		logger: logger,
	}
	s.token, s.cancel = feed.NewToken(o.ctx)
	s.agg = feed.NewAggregator(feed.WithLogger(logger))
	s.nav = navigation.NewNavigator(address, navigation.RouterFunc(s.route), logger)
	s.trigger = scroll.NewTrigger(s.agg, s.nav, logger)
	return s
}

// Mount dispatches the page requested by the address. Only the first call
// has an effect.
func (s *Session) Mount() []Fetch {
	if s.closed || s.mounted {
		return nil
	}
	s.mounted = true

	s.logger.Info().
		Str("address", s.nav.Address()).
		Int("page", s.nav.RequestedPage()).
		Msg("Session mounted")

	s.dispatch(s.nav.RequestedPage())
	return s.drain()
}

// Navigate follows address, e.g. a clicked link, and dispatches the page it
// requests. Invalid page values fall back to page 1.
func (s *Session) Navigate(address string) []Fetch {
	if s.closed {
		return nil
	}
	s.nav.Visit(address)
	s.dispatch(s.nav.RequestedPage())
	return s.drain()
}

// SentinelVisible reports that the sentinel entered the visible region.
func (s *Session) SentinelVisible() []Fetch {
	if s.closed {
		return nil
	}
	s.trigger.SentinelVisible()
	return s.drain()
}

// SentinelHidden reports that the sentinel left the visible region.
func (s *Session) SentinelHidden() {
	if s.closed {
		return
	}
	s.trigger.SentinelHidden()
}

// LoadPrevious navigates to the page before the lowest loaded one.
func (s *Session) LoadPrevious() []Fetch {
	if s.closed {
		return nil
	}

	link := s.previousLink()
	if link == nil {
		return nil
	}
	if err := s.nav.GoTo(link.Page); err != nil {
		s.logger.Warn().Err(err).Int("page", link.Page).Msg("Load previous failed")
		return nil
	}
	return s.drain()
}

// Apply folds c into the session. It reports whether the session changed;
// completions of torn down or foreign sessions are dropped and return false.
// Failed fetches leave the aggregate untouched but still end the load.
func (s *Session) Apply(c Completion) bool {
	if c.session != s {
		s.logger.Debug().Int("page", c.Page).Msg("Ignored completion of another session")
		return false
	}
	if s.closed || !c.token.Live() {
		staleCompletionsTotal.Inc()
		s.logger.Debug().Int("page", c.Page).Msg("Dropped stale completion")
		return false
	}

	// Complete after merging so the trigger sees the new hasNextPage.
	defer s.trigger.Complete()

	if c.Err != nil {
		fetchFailuresTotal.Inc()
		s.logger.Warn().Err(c.Err).Int("page", c.Page).Msg("Page fetch failed")
		return true
	}

	outcome, err := s.agg.Merge(c.token, c.Result)
	if err != nil {
		fetchFailuresTotal.Inc()
		s.logger.Warn().Err(err).Int("page", c.Page).Msg("Page merge rejected")
		return true
	}
	pagesMergedTotal.WithLabelValues(string(outcome)).Inc()
	return true
}

// Teardown cancels the session. In-flight fetches are aborted and their
// completions dropped.
func (s *Session) Teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.queued = nil
	s.cancel()

	s.logger.Info().
		Str("address", s.nav.Address()).
		Int("pages", s.agg.Len()).
		Msg("Session torn down")
}

// Closed reports whether Teardown was called.
func (s *Session) Closed() bool {
	return s.closed
}

// Context returns the session context. It is cancelled on Teardown.
func (s *Session) Context() context.Context {
	return s.token.Context()
}

// Address returns the current address.
func (s *Session) Address() string {
	return s.nav.Address()
}

// ScrollState returns the scroll trigger state.
func (s *Session) ScrollState() scroll.State {
	return s.trigger.State()
}

// Pages returns the loaded page indices in ascending order.
func (s *Session) Pages() []int {
	return s.agg.Pages()
}

// View returns the current render state.
func (s *Session) View() View {
	v := View{
		Pending:      s.agg.Empty(),
		Address:      s.nav.Address(),
		Loading:      s.trigger.Loading(),
		LoadPrevious: s.previousLink(),
	}
	if !v.Pending {
		v.Records = s.agg.CurrentView()
		v.ShowSentinel = s.agg.HasNextPage()
	}
	return v
}

// previousLink returns the link to lowest-1, or nil when the lowest loaded
// page is 1. Before the first merge the address decides the lowest page.
func (s *Session) previousLink() *Link {
	lowest := s.agg.LowestLoadedPage(s.nav.RequestedPage())
	if lowest <= 1 {
		return nil
	}

	address, err := s.nav.AddressFor(lowest - 1)
	if err != nil {
		return nil
	}
	return &Link{Page: lowest - 1, Address: address}
}

// route receives navigations issued through the navigator.
func (s *Session) route(address string) {
	s.dispatch(navigation.PageFromAddress(address))
}

func (s *Session) dispatch(page int) {
	s.queued = append(s.queued, Fetch{
		Page:    page,
		Address: s.nav.Address(),
		session: s,
		token:   s.token,
		source:  s.source,
	})
	s.trigger.Begin()
	fetchesDispatchedTotal.Inc()

	s.logger.Debug().
		Int("page", page).
		Str("address", s.nav.Address()).
		Msg("Fetch dispatched")
}

func (s *Session) drain() []Fetch {
	out := s.queued
	s.queued = nil
	return out
}
