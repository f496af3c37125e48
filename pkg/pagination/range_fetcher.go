package pagination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/scrollfeed/pkg/feed"
	"github.com/rs/zerolog/log"
)

// ErrWindowTooLarge is returned for windows wider than Config.MaxPages.
var ErrWindowTooLarge = errors.New("window too large")

// Config holds range fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// MaxPages caps the size of a window.
	MaxPages int
}

// DefaultConfig returns conservative defaults for a public upstream.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       20,
	}
}

// Completion is the outcome of one page fetch.
type Completion struct {
	Index  int
	Result *feed.PageResult
	Err    error
}

// Summary describes a completed window fetch.
type Summary struct {
	From       int
	To         int
	TotalPages int
	Merged     []int
	Failed     []int
	Duration   time.Duration
}

// HasNextPage reports whether pages exist after the window.
func (s Summary) HasNextPage() bool {
	return s.To < s.TotalPages
}

// RangeFetcher fetches windows of pages in parallel.
type RangeFetcher struct {
	source feed.Source
	config Config
}

// NewRangeFetcher creates a new range fetcher.
func NewRangeFetcher(source feed.Source, config Config) *RangeFetcher {
	if source == nil {
		panic("page source cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 20
	}

	return &RangeFetcher{
		source: source,
		config: config,
	}
}

// FetchInto fetches pages from..to and merges every successful page into agg
// in arrival order under a token derived from ctx. to is clamped to the total
// page count reported by page from. An error is returned only when page from
// itself fails or the window is invalid.
func (rf *RangeFetcher) FetchInto(ctx context.Context, agg *feed.Aggregator, from, to int) (Summary, error) {
	start := time.Now()

	if from < 1 {
		return Summary{}, fmt.Errorf("%w: %d", feed.ErrInvalidPage, from)
	}
	if to < from {
		to = from
	}
	if to-from+1 > rf.config.MaxPages {
		return Summary{}, fmt.Errorf("%w: %d-%d exceeds %d pages", ErrWindowTooLarge, from, to, rf.config.MaxPages)
	}

	token, cancel := feed.NewToken(ctx)
	defer cancel()

	first, err := rf.fetch(token.Context(), from)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to fetch page %d: %w", from, err)
	}
	if _, err := agg.Merge(token, first); err != nil {
		return Summary{}, fmt.Errorf("merge page %d: %w", from, err)
	}

	summary := Summary{
		From:       from,
		To:         to,
		TotalPages: first.TotalPages,
		Merged:     []int{from},
	}
	if summary.To > summary.TotalPages {
		summary.To = max(summary.TotalPages, from)
	}

	log.Debug().
		Int("from", from).
		Int("to", summary.To).
		Int("total_pages", summary.TotalPages).
		Msg("Starting window fetch")

	for c := range rf.stream(token.Context(), from+1, summary.To) {
		if c.Err != nil {
			log.Warn().
				Err(c.Err).
				Int("page", c.Index).
				Msg("Page fetch failed")
			summary.Failed = append(summary.Failed, c.Index)
			continue
		}
		if _, err := agg.Merge(token, c.Result); err != nil {
			summary.Failed = append(summary.Failed, c.Index)
			continue
		}
		summary.Merged = append(summary.Merged, c.Index)
	}

	sort.Ints(summary.Merged)
	sort.Ints(summary.Failed)
	summary.Duration = time.Since(start)

	log.Info().
		Int("from", from).
		Int("to", summary.To).
		Int("merged", len(summary.Merged)).
		Int("failed", len(summary.Failed)).
		Dur("duration", summary.Duration).
		Msg("Window fetch complete")

	return summary, ctx.Err()
}

// Stream fetches pages from..to concurrently. Completions are delivered in
// arrival order and the channel is closed once every page finished or ctx
// is done.
func (rf *RangeFetcher) Stream(ctx context.Context, from, to int) (<-chan Completion, error) {
	if from < 1 {
		return nil, fmt.Errorf("%w: %d", feed.ErrInvalidPage, from)
	}
	if to-from+1 > rf.config.MaxPages {
		return nil, fmt.Errorf("%w: %d-%d exceeds %d pages", ErrWindowTooLarge, from, to, rf.config.MaxPages)
	}
	return rf.stream(ctx, from, to), nil
}

func (rf *RangeFetcher) stream(ctx context.Context, from, to int) <-chan Completion {
	results := make(chan Completion, max(to-from+1, 0))
	pageQueue := make(chan int)

	go func() {
		defer close(pageQueue)
		for page := from; page <= to; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < rf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go rf.worker(ctx, pageQueue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// worker processes pages from the queue.
func (rf *RangeFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- Completion, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for page := range pageQueue {
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		result, err := rf.fetch(ctx, page)
		results <- Completion{Index: page, Result: result, Err: err}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func (rf *RangeFetcher) fetch(ctx context.Context, page int) (*feed.PageResult, error) {
	pageCtx, cancel := context.WithTimeout(ctx, rf.config.Timeout)
	defer cancel()
	return rf.source.FetchPage(pageCtx, page)
}
