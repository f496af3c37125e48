// Package source provides the HTTP page source for the feed: a client for a
// paginated users endpoint that answers GET {base}{path}?page=N.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/scrollfeed/pkg/feed"
	"github.com/Sternrassler/scrollfeed/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetches.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_source_requests_total",
		Help: "Total upstream page requests by status",
	}, []string{"status"})

	sourceRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_source_request_duration_seconds",
		Help:    "Upstream page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_source_errors_total",
		Help: "Total failed page fetches by error class",
	}, []string{"class"})
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Client fetches pages of users from the upstream.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	gate       *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the upstream, e.g. "https://reqres.in".
	BaseURL string

	// Path of the paginated collection, e.g. "/api/users".
	Path string

	// APIKey is sent as the x-api-key header when set.
	APIKey string

	// UserAgent header (required).
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// FetchDelay postpones every fetch. Zero disables it.
	FetchDelay time.Duration

	// Redis enables the shared upstream rate limit gate when set.
	Redis *redis.Client

	// ThrottleDelay is applied while the upstream budget is low.
	ThrottleDelay time.Duration
}

// DefaultConfig returns the configuration for the public reqres.in users API.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:       "https://reqres.in",
		Path:          "/api/users",
		UserAgent:     userAgent,
		Timeout:       15 * time.Second,
		ThrottleDelay: 1 * time.Second,
	}
}

// New creates a new page source client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.FetchDelay < 0 {
		return nil, fmt.Errorf("fetch delay must be >= 0 (got %s)", cfg.FetchDelay)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s) (got %q)", cfg.BaseURL)
	}

	endpoint := base.JoinPath(cfg.Path)

	logger := log.With().Str("component", "page-source").Logger()

	var gate *ratelimit.Tracker
	if cfg.Redis != nil {
		gate = ratelimit.NewTracker(cfg.Redis, cfg.ThrottleDelay, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: endpoint,
		gate:     gate,
		config:   cfg,
		logger:   logger,
	}, nil
}

// usersResponse is the upstream page body.
type usersResponse struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	Data       []user `json:"data"`
}

type user struct {
	ID        flexibleID `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
}

// flexibleID accepts identifiers encoded as JSON numbers or strings.
type flexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

func (u user) record() feed.Record {
	display := u.Email
	if display == "" {
		display = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return feed.Record{ID: string(u.ID), Display: display}
}

// URL returns the request URL for page index.
func (c *Client) URL(index int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("page", strconv.Itoa(index))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage fetches page index. It makes exactly one request; failures are
// returned as *SourceError or ErrRequestBlocked, cancellation as ctx.Err().
func (c *Client) FetchPage(ctx context.Context, index int) (*feed.PageResult, error) {
	if index < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, index)
	}

	if err := c.wait(ctx, c.config.FetchDelay); err != nil {
		return nil, err
	}

	if c.gate != nil {
		allowed, err := c.gate.Allow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A broken gate must not take the feed down with it.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			sourceRequestsTotal.WithLabelValues("blocked").Inc()
			return nil, ErrRequestBlocked
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(index), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	c.logger.Debug().
		Int("page", index).
		Str("url", req.URL.String()).
		Msg("Fetching page")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	sourceRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sourceRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, c.fail(&SourceError{
			Page:       index,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.gate != nil {
		if err := c.gate.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, c.fail(&SourceError{
			Page:       index,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		})
	}

	var body usersResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(&SourceError{
			Page:       index,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid page body",
			Err:        err,
		})
	}

	if body.Page != 0 && body.Page != index {
		c.logger.Warn().
			Int("page", index).
			Int("reported_page", body.Page).
			Msg("Upstream reported a different page index")
	}

	result := &feed.PageResult{
		Index:      index,
		TotalPages: body.TotalPages,
		Records:    make([]feed.Record, 0, len(body.Data)),
	}
	for _, u := range body.Data {
		result.Records = append(result.Records, u.record())
	}

	c.logger.Debug().
		Int("page", index).
		Int("total_pages", result.TotalPages).
		Int("records", len(result.Records)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return result, nil
}

// fail records metrics and logs for a classified failure.
func (c *Client) fail(err *SourceError) error {
	sourceErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	c.logger.Warn().
		Int("page", err.Page).
		Int("status", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Err(err.Err).
		Msg("Page fetch failed")
	return err
}

// wait blocks for d or until ctx is done.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ feed.Source = (*Client)(nil)
