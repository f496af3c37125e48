package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/scrollfeed/internal/config"
	"github.com/Sternrassler/scrollfeed/pkg/feed"
	"github.com/Sternrassler/scrollfeed/pkg/logging"
	"github.com/Sternrassler/scrollfeed/pkg/metrics"
	"github.com/Sternrassler/scrollfeed/pkg/navigation"
	"github.com/Sternrassler/scrollfeed/pkg/pagination"
	"github.com/Sternrassler/scrollfeed/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "feed-proxy: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging(os.Stderr)
	logCfg.Service = "feed-proxy"
	logging.Setup(logCfg)
	logger := logging.NewLogger("feed-proxy")

	srcCfg := cfg.Source()

	// Optional shared upstream rate limit state
	var redisClient *redis.Client
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid Redis configuration")
	}
	if redisOpts != nil {
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisOpts.Addr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		srcCfg.Redis = redisClient
		logger.Info().Str("redis", redisOpts.Addr).Msg("Connected to Redis")
	}

	client, err := source.New(srcCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create page source")
	}
	defer client.Close()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(client, pagination.NewRangeFetcher(client, pagination.DefaultConfig()), redisClient),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Str("upstream", client.URL(1)).
		Str("user_agent", srcCfg.UserAgent).
		Msg("Starting feed proxy")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Feed proxy stopped")
}

// newMux wires the proxy endpoints. redisClient may be nil.
func newMux(src feed.Source, fetcher *pagination.RangeFetcher, redisClient *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.HandleFunc("GET /users", pageHandler(src))
	mux.HandleFunc("GET /users/window", windowHandler(fetcher))
	mux.Handle("GET /metrics", metrics.Handler())
	return requestLogger(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the rate limit store is reachable. Without
// Redis the proxy is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// pageResponse is the body of GET /users.
type pageResponse struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	HasNextPage  bool          `json:"has_next_page"`
	PreviousPage int           `json:"previous_page,omitempty"`
	Records      []feed.Record `json:"records"`
}

// pageHandler loads the page named by the sanitized page parameter.
func pageHandler(src feed.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := navigation.ParseRequestedPage(r.URL.Query().Get(navigation.PageParam))

		result, err := src.FetchPage(r.Context(), page)
		if err != nil {
			writeFetchError(w, r, err)
			return
		}

		resp := pageResponse{
			Page:        result.Index,
			TotalPages:  result.TotalPages,
			HasNextPage: result.HasNextPage(),
			Records:     result.Records,
		}
		if result.Index > 1 {
			resp.PreviousPage = result.Index - 1
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// windowResponse is the body of GET /users/window.
type windowResponse struct {
	From        int           `json:"from"`
	To          int           `json:"to"`
	TotalPages  int           `json:"total_pages"`
	HasNextPage bool          `json:"has_next_page"`
	Pages       []int         `json:"pages"`
	Failed      []int         `json:"failed,omitempty"`
	Records     []feed.Record `json:"records"`
}

// windowHandler loads pages from..to in one request, so a shared address
// can be reproduced at once.
func windowHandler(fetcher *pagination.RangeFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		from := navigation.ParseRequestedPage(query.Get("from"))
		to := navigation.ParseRequestedPage(query.Get("to"))
		if query.Get("to") == "" {
			to = from
		}
		if to < from {
			http.Error(w, fmt.Sprintf("to (%d) must be >= from (%d)", to, from), http.StatusBadRequest)
			return
		}

		agg := feed.NewAggregator()
		summary, err := fetcher.FetchInto(r.Context(), agg, from, to)
		if errors.Is(err, pagination.ErrWindowTooLarge) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			writeFetchError(w, r, err)
			return
		}

		records := agg.CurrentView()
		if records == nil {
			records = []feed.Record{}
		}
		writeJSON(w, http.StatusOK, windowResponse{
			From:        summary.From,
			To:          summary.To,
			TotalPages:  summary.TotalPages,
			HasNextPage: summary.HasNextPage(),
			Pages:       agg.Pages(),
			Failed:      summary.Failed,
			Records:     records,
		})
	}
}

// writeFetchError maps source failures to gateway statuses.
func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	switch {
	case source.IsCancelled(err):
		// The client went away; nobody reads the response.
		logger.Debug().Err(err).Msg("Request cancelled")
		return
	case errors.Is(err, source.ErrRequestBlocked):
		w.Header().Set("Retry-After", "60")
		http.Error(w, "upstream rate limit exhausted", http.StatusServiceUnavailable)
	case source.ClassOf(err) == source.ErrorClassRateLimit:
		w.Header().Set("Retry-After", "60")
		http.Error(w, "upstream rate limited", http.StatusServiceUnavailable)
	case source.ClassOf(err) == source.ErrorClassNetwork:
		http.Error(w, "upstream unreachable", http.StatusGatewayTimeout)
	default:
		http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
	}

	logger.Warn().
		Err(err).
		Str("error_class", string(source.ClassOf(err))).
		Msg("Page request failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger attaches a request logger to the context and logs every
// request once it is served.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := logging.NewLogger("feed-proxy").With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("query", r.URL.RawQuery).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
