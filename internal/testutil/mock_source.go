// Package testutil provides testing utilities for the feed.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// UsersPath is the collection path served by MockSource.
const UsersPath = "/api/users"

// PageBehavior overrides how a single page is answered.
type PageBehavior struct {
	// StatusCode other than 0 or 200 is returned with an error body.
	StatusCode int

	// Body replaces the generated JSON body.
	Body string

	// Delay before answering.
	Delay time.Duration

	// Headers added to the response.
	Headers map[string]string

	// Release, when set, blocks the answer until it is closed.
	Release chan struct{}
}

// MockSource is a configurable paginated users endpoint.
type MockSource struct {
	server *httptest.Server

	mu         sync.RWMutex
	totalPages int
	perPage    int
	behaviors  map[int]PageBehavior

	// Tracking
	requests   []int
	lastHeader http.Header
}

// NewMockSource starts a server with totalPages pages of perPage users each.
func NewMockSource(totalPages, perPage int) *MockSource {
	m := &MockSource{
		totalPages: totalPages,
		perPage:    perPage,
		behaviors:  make(map[int]PageBehavior),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the server base URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockSource) Close() {
	m.server.Close()
}

// SetPage configures the behavior of one page.
func (m *MockSource) SetPage(page int, b PageBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviors[page] = b
}

// SetTotalPages changes the reported page count.
func (m *MockSource) SetTotalPages(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPages = total
}

// Requests returns the requested page numbers in arrival order.
func (m *MockSource) Requests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests served.
func (m *MockSource) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastHeader returns the headers of the latest request.
func (m *MockSource) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func (m *MockSource) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != UsersPath {
		http.NotFound(w, r)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	m.requests = append(m.requests, page)
	m.lastHeader = r.Header.Clone()
	b, custom := m.behaviors[page]
	total := m.totalPages
	perPage := m.perPage
	m.mu.Unlock()

	if custom {
		if b.Release != nil {
			select {
			case <-b.Release:
			case <-r.Context().Done():
				return
			}
		}
		if b.Delay > 0 {
			select {
			case <-time.After(b.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range b.Headers {
			w.Header().Set(key, value)
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if custom && b.StatusCode != 0 && b.StatusCode != http.StatusOK {
		w.WriteHeader(b.StatusCode)
		fmt.Fprintf(w, `{"error": %q}`, http.StatusText(b.StatusCode))
		return
	}

	if custom && b.Body != "" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(b.Body))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(UsersPage(page, total, perPage))
}

// User mirrors one element of the upstream "data" array.
type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

// UsersBody mirrors the upstream page body.
type UsersBody struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	Data       []User `json:"data"`
}

// UsersPage builds the body of page. Pages beyond total are empty.
func UsersPage(page, total, perPage int) UsersBody {
	body := UsersBody{
		Page:       page,
		PerPage:    perPage,
		Total:      total * perPage,
		TotalPages: total,
		Data:       []User{},
	}
	if page > total {
		return body
	}
	for i := 0; i < perPage; i++ {
		id := (page-1)*perPage + i + 1
		body.Data = append(body.Data, User{
			ID:        id,
			Email:     UserEmail(id),
			FirstName: "User",
			LastName:  strconv.Itoa(id),
			Avatar:    fmt.Sprintf("https://example.com/img/%d.jpg", id),
		})
	}
	return body
}

// UserEmail is the display value of the generated user id.
func UserEmail(id int) string {
	return fmt.Sprintf("user%d@example.com", id)
}
