// Package feed implements page aggregation for infinite-scroll views.
//
// Pages fetched from a remote source arrive independently and in any order.
// The Aggregator keys them by page index, so the assembled record list is
// always the concatenation of held pages in ascending index order, no matter
// which fetch completed first. A later fetch for an index replaces the
// earlier page wholesale.
//
// Example usage:
//
//	agg := feed.NewAggregator()
//	_ = agg.OnPageFetched(3, 5, recordsOfPage3)
//	_ = agg.OnPageFetched(2, 5, recordsOfPage2)
//	view := agg.CurrentView() // page 2 records, then page 3 records
//
// Merges performed on behalf of a session go through Merge with the session's
// Token. Once the token is cancelled, late completions are dropped without
// touching the aggregate.
//
// An Aggregator is owned by a single goroutine. Callers that fetch pages
// concurrently must hand results back to that goroutine before merging.
package feed
