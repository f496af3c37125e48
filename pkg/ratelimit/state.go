// Package ratelimit tracks the upstream's rate-limit headers and gates page
// requests before the budget is exhausted. State lives in Redis so every
// process talking to the same upstream shares one view of the budget.
package ratelimit

import (
	"time"
)

// Redis keys for upstream rate limit state.
const (
	RedisKeyRemaining  = "feed:rate_limit:remaining"
	RedisKeyResetAt    = "feed:rate_limit:reset_at"
	RedisKeyLastUpdate = "feed:rate_limit:last_update"
)

// Response headers read from the upstream.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for gating decisions, in remaining requests.
const (
	// ThresholdCritical blocks requests while fewer requests remain.
	ThresholdCritical = 2

	// ThresholdWarning delays requests while fewer requests remain.
	ThresholdWarning = 10

	// ThresholdHealthy marks the budget as healthy at or above this value.
	ThresholdHealthy = 25
)

// State is the last known upstream request budget.
type State struct {
	// Remaining requests in the current window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// Expired reports whether the window has already reset, making Remaining meaningless.
func (s *State) Expired(now time.Time) bool {
	return !s.ResetAt.IsZero() && !now.Before(s.ResetAt)
}

// NeedsBlock reports whether requests must be refused.
func (s *State) NeedsBlock(now time.Time) bool {
	return !s.Expired(now) && s.Remaining < ThresholdCritical
}

// NeedsThrottling reports whether requests should be delayed.
func (s *State) NeedsThrottling(now time.Time) bool {
	return !s.Expired(now) && s.Remaining < ThresholdWarning && s.Remaining >= ThresholdCritical
}

// TimeUntilReset returns the time left in the window, or 0 once it reset.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
