package feed

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidPage is returned when a page index below 1 is merged.
	ErrInvalidPage = errors.New("invalid page index")

	// ErrStaleToken is returned by Merge when the session token was cancelled.
	ErrStaleToken = errors.New("session token cancelled")
)

// MergeOutcome describes what a merge did to the aggregate.
type MergeOutcome string

const (
	// OutcomeInserted means the page index was not held before.
	OutcomeInserted MergeOutcome = "inserted"

	// OutcomeReplaced means an older page with the same index was superseded.
	OutcomeReplaced MergeOutcome = "replaced"
)

// Aggregator holds the pages fetched during one session.
// It is not safe for concurrent use.
type Aggregator struct {
	pages       map[int]Page
	hasNextPage bool
	lastLoaded  int
	loaded      bool
	logger      zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for merge diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an empty aggregate.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		pages:  make(map[int]Page),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnPageFetched stores the records of page index, replacing any page already
// held for that index, and records index as the last loaded page.
// hasNextPage becomes index < totalPages.
func (a *Aggregator) OnPageFetched(index, totalPages int, records []Record) error {
	_, err := a.onPageFetched(index, totalPages, records)
	return err
}

func (a *Aggregator) onPageFetched(index, totalPages int, records []Record) (MergeOutcome, error) {
	if index < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPage, index)
	}

	outcome := OutcomeInserted
	if _, exists := a.pages[index]; exists {
		outcome = OutcomeReplaced
	}

	// Copy so later changes to the caller's slice cannot leak into the aggregate.
	held := make([]Record, len(records))
	copy(held, records)

	a.pages[index] = Page{Index: index, Records: held}
	a.hasNextPage = index < totalPages
	a.lastLoaded = index
	a.loaded = true

	a.logger.Debug().
		Int("page", index).
		Int("total_pages", totalPages).
		Int("records", len(held)).
		Str("outcome", string(outcome)).
		Bool("has_next_page", a.hasNextPage).
		Msg("Page merged")

	return outcome, nil
}

// Merge folds result into the aggregate if token is still live.
// It returns ErrStaleToken, leaving the aggregate untouched, otherwise.
func (a *Aggregator) Merge(token Token, result *PageResult) (MergeOutcome, error) {
	if !token.Live() {
		return "", ErrStaleToken
	}
	if result == nil {
		return "", fmt.Errorf("page result cannot be nil")
	}
	return a.onPageFetched(result.Index, result.TotalPages, result.Records)
}

// CurrentView returns the records of all held pages, pages in ascending index
// order and records in source order. It returns nil before the first merge.
func (a *Aggregator) CurrentView() []Record {
	if len(a.pages) == 0 {
		return nil
	}

	total := 0
	for _, p := range a.pages {
		total += len(p.Records)
	}

	view := make([]Record, 0, total)
	for _, index := range a.Pages() {
		view = append(view, a.pages[index].Records...)
	}
	return view
}

// Pages returns the held page indices in ascending order.
func (a *Aggregator) Pages() []int {
	indices := make([]int, 0, len(a.pages))
	for index := range a.pages {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// Page returns the page held for index.
func (a *Aggregator) Page(index int) (Page, bool) {
	p, ok := a.pages[index]
	return p, ok
}

// Len returns the number of held pages.
func (a *Aggregator) Len() int {
	return len(a.pages)
}

// Empty reports whether no page has been merged yet.
func (a *Aggregator) Empty() bool {
	return len(a.pages) == 0
}

// HasNextPage reports whether the most recent merge announced a next page.
func (a *Aggregator) HasNextPage() bool {
	return a.hasNextPage
}

// LastLoadedPage returns the index of the most recent merge.
// ok is false until a page has been merged.
func (a *Aggregator) LastLoadedPage() (page int, ok bool) {
	return a.lastLoaded, a.loaded
}

// LowestLoadedPage returns the smallest held page index, or requested when
// nothing is held yet.
func (a *Aggregator) LowestLoadedPage(requested int) int {
	if len(a.pages) == 0 {
		return requested
	}

	lowest := 0
	for index := range a.pages {
		if lowest == 0 || index < lowest {
			lowest = index
		}
	}
	return lowest
}
