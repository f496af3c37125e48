package ratelimit

import (
	"testing"
	"time"
)

func TestState_NeedsBlock(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		remaining int
		resetAt   time.Time
		expected  bool
	}{
		{"healthy", 50, now.Add(time.Minute), false},
		{"at critical threshold", ThresholdCritical, now.Add(time.Minute), false},
		{"below critical threshold", ThresholdCritical - 1, now.Add(time.Minute), true},
		{"exhausted", 0, now.Add(time.Minute), true},
		{"exhausted but window reset", 0, now.Add(-time.Second), false},
		{"exhausted without reset time", 0, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{Remaining: tt.remaining, ResetAt: tt.resetAt}
			if got := s.NeedsBlock(now); got != tt.expected {
				t.Errorf("NeedsBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_NeedsThrottling(t *testing.T) {
	now := time.Now()
	reset := now.Add(time.Minute)

	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{"healthy", ThresholdHealthy, false},
		{"at warning threshold", ThresholdWarning, false},
		{"below warning threshold", ThresholdWarning - 1, true},
		{"at critical threshold", ThresholdCritical, true},
		{"critical blocks instead", ThresholdCritical - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{Remaining: tt.remaining, ResetAt: reset}
			if got := s.NeedsThrottling(now); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	now := time.Now()

	s := &State{ResetAt: now.Add(30 * time.Second)}
	if got := s.TimeUntilReset(now); got != 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want 30s", got)
	}

	s.ResetAt = now.Add(-time.Second)
	if got := s.TimeUntilReset(now); got != 0 {
		t.Errorf("TimeUntilReset() after reset = %v, want 0", got)
	}
}

func TestState_UpdateHealth(t *testing.T) {
	s := &State{Remaining: ThresholdHealthy}
	s.UpdateHealth()
	if !s.IsHealthy {
		t.Error("Expected healthy at threshold")
	}

	s.Remaining = ThresholdHealthy - 1
	s.UpdateHealth()
	if s.IsHealthy {
		t.Error("Expected unhealthy below threshold")
	}
}
