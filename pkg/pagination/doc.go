// Package pagination fetches a window of pages concurrently.
//
// The first page of the window is fetched alone to learn the total page
// count; the rest of the window is then spread over a worker pool. Pages
// complete in whatever order the upstream answers, and FetchInto folds each
// one into a feed.Aggregator as it arrives. Because the aggregator is keyed
// by page index, the resulting view is ordered regardless of arrival order.
//
// Example usage:
//
//	rf := pagination.NewRangeFetcher(client, pagination.DefaultConfig())
//	agg := feed.NewAggregator()
//	summary, err := rf.FetchInto(ctx, agg, 2, 5)
//	records := agg.CurrentView()
//
// Each page gets exactly one attempt; failed pages are reported in the
// summary and leave the aggregate untouched.
package pagination
