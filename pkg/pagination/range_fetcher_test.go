package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/scrollfeed/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves totalPages pages; later pages answer faster so the
// window completes in reverse order.
type fakeSource struct {
	totalPages int
	fail       map[int]bool

	mu        sync.Mutex
	requested []int
}

func (s *fakeSource) FetchPage(ctx context.Context, index int) (*feed.PageResult, error) {
	s.mu.Lock()
	s.requested = append(s.requested, index)
	s.mu.Unlock()

	select {
	case <-time.After(time.Duration(10-index) * 15 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s.fail[index] {
		return nil, errors.New("upstream unavailable")
	}
	return &feed.PageResult{
		Index:      index,
		TotalPages: s.totalPages,
		Records:    []feed.Record{{ID: fmt.Sprint(index), Display: fmt.Sprintf("page-%d", index)}},
	}, nil
}

func displays(view []feed.Record) []string {
	out := make([]string, len(view))
	for i, r := range view {
		out[i] = r.Display
	}
	return out
}

func TestRangeFetcher_FetchInto(t *testing.T) {
	src := &fakeSource{totalPages: 6}
	rf := NewRangeFetcher(src, Config{MaxConcurrency: 3})
	agg := feed.NewAggregator()

	summary, err := rf.FetchInto(context.Background(), agg, 2, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"page-2", "page-3", "page-4", "page-5"}, displays(agg.CurrentView()))
	assert.Equal(t, []int{2, 3, 4, 5}, summary.Merged)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 6, summary.TotalPages)
	assert.True(t, summary.HasNextPage())
	assert.Equal(t, 2, agg.LowestLoadedPage(1))
}

func TestRangeFetcher_ClampsToTotalPages(t *testing.T) {
	src := &fakeSource{totalPages: 3}
	rf := NewRangeFetcher(src, DefaultConfig())
	agg := feed.NewAggregator()

	summary, err := rf.FetchInto(context.Background(), agg, 1, 8)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.To)
	assert.False(t, summary.HasNextPage())
	assert.ElementsMatch(t, []int{1, 2, 3}, src.requested)
}

func TestRangeFetcher_PartialFailure(t *testing.T) {
	src := &fakeSource{totalPages: 5, fail: map[int]bool{3: true}}
	rf := NewRangeFetcher(src, DefaultConfig())
	agg := feed.NewAggregator()

	summary, err := rf.FetchInto(context.Background(), agg, 1, 4)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 4}, summary.Merged)
	assert.Equal(t, []int{3}, summary.Failed)
	assert.Equal(t, []string{"page-1", "page-2", "page-4"}, displays(agg.CurrentView()))
}

func TestRangeFetcher_FirstPageFailure(t *testing.T) {
	src := &fakeSource{totalPages: 5, fail: map[int]bool{2: true}}
	rf := NewRangeFetcher(src, DefaultConfig())
	agg := feed.NewAggregator()

	_, err := rf.FetchInto(context.Background(), agg, 2, 4)
	assert.Error(t, err)
	assert.True(t, agg.Empty())
	assert.Equal(t, []int{2}, src.requested)
}

func TestRangeFetcher_InvalidWindow(t *testing.T) {
	rf := NewRangeFetcher(&fakeSource{totalPages: 50}, Config{MaxPages: 5})
	agg := feed.NewAggregator()

	_, err := rf.FetchInto(context.Background(), agg, 0, 3)
	assert.ErrorIs(t, err, feed.ErrInvalidPage)

	_, err = rf.FetchInto(context.Background(), agg, 1, 10)
	assert.ErrorIs(t, err, ErrWindowTooLarge)

	_, err = rf.Stream(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrWindowTooLarge)
}

func TestRangeFetcher_StreamArrivalOrder(t *testing.T) {
	src := &fakeSource{totalPages: 4}
	rf := NewRangeFetcher(src, Config{MaxConcurrency: 4})

	completions, err := rf.Stream(context.Background(), 1, 4)
	require.NoError(t, err)

	var order []int
	for c := range completions {
		require.NoError(t, c.Err)
		order = append(order, c.Index)
	}

	// Later pages answer faster in the fake source.
	assert.Equal(t, []int{4, 3, 2, 1}, order)
}

func TestRangeFetcher_Cancelled(t *testing.T) {
	src := &fakeSource{totalPages: 10}
	rf := NewRangeFetcher(src, Config{MaxConcurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completions, err := rf.Stream(ctx, 1, 5)
	require.NoError(t, err)

	for c := range completions {
		assert.Error(t, c.Err)
	}
}

func TestNewRangeFetcher_Defaults(t *testing.T) {
	rf := NewRangeFetcher(&fakeSource{}, Config{})
	assert.Equal(t, 4, rf.config.MaxConcurrency)
	assert.Equal(t, 15*time.Second, rf.config.Timeout)
	assert.Equal(t, 20, rf.config.MaxPages)

	assert.Panics(t, func() { NewRangeFetcher(nil, Config{}) })
}
