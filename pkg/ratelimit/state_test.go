package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsCriticalBlock(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	past := time.Now().Add(-time.Second)

	tests := []struct {
		name     string
		left     int
		resetAt  time.Time
		expected bool
	}{
		{name: "plenty left", left: 80, resetAt: future, expected: false},
		{name: "at critical threshold", left: ThresholdCritical, resetAt: future, expected: false},
		{name: "below critical threshold", left: ThresholdCritical - 1, resetAt: future, expected: true},
		{name: "exhausted", left: 0, resetAt: future, expected: true},
		{name: "exhausted but window reset", left: 0, resetAt: past, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{RequestsLeft: tt.left, ResetAt: tt.resetAt}
			if got := s.NeedsCriticalBlock(); got != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsThrottling(t *testing.T) {
	future := time.Now().Add(30 * time.Second)

	tests := []struct {
		name     string
		left     int
		expected bool
	}{
		{name: "healthy", left: ThresholdHealthy, expected: false},
		{name: "at warning threshold", left: ThresholdWarning, expected: false},
		{name: "warning range", left: ThresholdWarning - 1, expected: true},
		{name: "critical is not throttled", left: ThresholdCritical - 1, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{RequestsLeft: tt.left, ResetAt: future}
			if got := s.NeedsThrottling(); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	s := &RateLimitState{ResetAt: time.Now().Add(-time.Minute)}
	if got := s.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() past = %v, want 0", got)
	}

	s.ResetAt = time.Now().Add(time.Minute)
	got := s.TimeUntilReset()
	if got <= 55*time.Second || got > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want about 1m", got)
	}
}

func TestRateLimitState_UpdateHealth(t *testing.T) {
	tests := []struct {
		left     int
		expected bool
	}{
		{left: ThresholdHealthy + 10, expected: true},
		{left: ThresholdHealthy, expected: true},
		{left: ThresholdHealthy - 1, expected: false},
		{left: 0, expected: false},
	}

	for _, tt := range tests {
		s := &RateLimitState{RequestsLeft: tt.left}
		s.UpdateHealth()
		if s.IsHealthy != tt.expected {
			t.Errorf("UpdateHealth() with %d left: IsHealthy = %v, want %v", tt.left, s.IsHealthy, tt.expected)
		}
	}
}

func TestThresholdConstants(t *testing.T) {
	if !(ThresholdCritical < ThresholdWarning && ThresholdWarning < ThresholdHealthy) {
		t.Errorf("thresholds out of order: critical=%d warning=%d healthy=%d",
			ThresholdCritical, ThresholdWarning, ThresholdHealthy)
	}
}
