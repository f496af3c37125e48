package feed

import "context"

// Record is one item of the remote collection.
type Record struct {
	// ID is the stable unique identifier reported by the source.
	ID string `json:"id"`

	// Display is the value shown to the user.
	Display string `json:"display"`
}

// Page is the set of records fetched for one page index.
type Page struct {
	// Index is the 1-based page number.
	Index int `json:"index"`

	// Records in the order the source returned them.
	Records []Record `json:"records"`
}

// PageResult is the outcome of a single successful page fetch.
type PageResult struct {
	Index      int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Records    []Record `json:"records"`
}

// HasNextPage reports whether the source announced pages after this one.
func (r *PageResult) HasNextPage() bool {
	return r.Index < r.TotalPages
}

// Source fetches a single page of the remote collection.
type Source interface {
	// FetchPage returns the records of page index together with the total
	// page count reported by the source.
	FetchPage(ctx context.Context, index int) (*PageResult, error)
}
