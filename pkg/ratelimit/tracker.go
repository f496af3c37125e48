package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream rate limit tracking.
var (
	upstreamRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_upstream_requests_remaining",
		Help: "Requests remaining in the upstream rate limit window",
	})

	upstreamBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_upstream_blocks_total",
		Help: "Total page requests refused because the upstream budget is exhausted",
	})

	upstreamThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_upstream_throttles_total",
		Help: "Total page requests delayed because the upstream budget is low",
	})
)

// unixResetCutoff separates "seconds until reset" from absolute unix
// timestamps in the reset header; upstreams use both conventions.
const unixResetCutoff = 1_000_000_000

// Tracker keeps the upstream budget in Redis and gates requests.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
	now      func() time.Time
}

// NewTracker creates a tracker. throttle is the delay applied while the
// budget is in the warning band.
func NewTracker(redisClient *redis.Client, throttle time.Duration, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: throttle,
		now:      time.Now,
	}
}

// GetState reads the shared state. Without stored data it returns a healthy default.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	values, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyResetAt, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if values[0] == nil {
		t.logger.Debug().Msg("No upstream rate limit state in Redis, assuming healthy")
		now := t.now()
		return &State{
			Remaining:  ThresholdHealthy,
			LastUpdate: now,
			IsHealthy:  true,
		}, nil
	}

	remaining, err := parseInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}

	state := &State{Remaining: int(remaining)}

	if values[1] != nil {
		resetUnix, err := parseInt(values[1])
		if err != nil {
			return nil, fmt.Errorf("parse reset timestamp: %w", err)
		}
		state.ResetAt = time.Unix(resetUnix, 0)
	}

	if values[2] != nil {
		updated, err := parseInt(values[2])
		if err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
		state.LastUpdate = time.Unix(updated, 0)
	}

	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders stores the budget announced by an upstream response.
// Responses without rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	now := t.now()
	state := &State{
		Remaining:  remain,
		LastUpdate: now,
	}

	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		reset, err := strconv.ParseInt(resetStr, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		if reset >= unixResetCutoff {
			state.ResetAt = time.Unix(reset, 0)
		} else {
			state.ResetAt = now.Add(time.Duration(reset) * time.Second)
		}
	}
	state.UpdateHealth()

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, remain, 0)
	if state.ResetAt.IsZero() {
		pipe.Del(ctx, RedisKeyResetAt)
	} else {
		pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), 0)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, now.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	upstreamRemaining.Set(float64(remain))

	event := t.logger.Debug()
	switch {
	case state.NeedsBlock(now):
		event = t.logger.Error()
	case state.NeedsThrottling(now):
		event = t.logger.Warn()
	}
	event.
		Int("remaining", remain).
		Time("reset_at", state.ResetAt).
		Bool("is_healthy", state.IsHealthy).
		Msg("Upstream rate limit state updated")

	return nil
}

// Allow reports whether a request may be sent now. In the warning band it
// waits for the throttle delay first, returning early if ctx is done.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	now := t.now()
	if state.NeedsBlock(now) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset(now)).
			Msg("Upstream budget exhausted - blocking request")
		upstreamBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling(now) && t.throttle > 0 {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttle).
			Msg("Upstream budget low - throttling request")
		upstreamThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Reset removes the stored state.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, RedisKeyRemaining, RedisKeyResetAt, RedisKeyLastUpdate).Err(); err != nil {
		return fmt.Errorf("reset rate limit state: %w", err)
	}
	return nil
}

func parseInt(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected redis value type")
	}
	return strconv.ParseInt(s, 10, 64)
}
