// Package ratelimit tracks the commerce API request budget shared by every storefront
// instance. It reads the X-Rate-Limit-Requests-Left and X-Rate-Limit-Time-Reset-Ms response
// headers, keeps the latest state in Redis and gates outgoing requests when the budget is
// nearly spent.
package ratelimit

import (
	"time"
)

// Redis hash holding the shared rate limit state.
const (
	RedisKeyState = "storefront:rate_limit"

	fieldRequestsLeft = "requests_left"
	fieldResetAt      = "reset_at_ms"
	fieldLastUpdate   = "last_update_ms"
)

// Response headers sent by the commerce API.
const (
	HeaderRequestsLeft = "X-Rate-Limit-Requests-Left"
	HeaderResetMs      = "X-Rate-Limit-Time-Reset-Ms"
	HeaderQuota        = "X-Rate-Limit-Requests-Quota"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests when fewer requests than this remain in the window.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests when fewer requests than this remain.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 50
)

// RateLimitState represents the current upstream request budget.
// This state is shared across all storefront instances via Redis.
type RateLimitState struct {
	// RequestsLeft is the number of requests allowed before the window resets.
	RequestsLeft int `json:"requests_left"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from response headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when RequestsLeft >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
// A window that already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.RequestsLeft < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.RequestsLeft < ThresholdWarning && s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current RequestsLeft.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.RequestsLeft >= ThresholdHealthy
}

func healthyState() *RateLimitState {
	return &RateLimitState{
		RequestsLeft: ThresholdHealthy * 2,
		ResetAt:      time.Now(),
		LastUpdate:   time.Now(),
		IsHealthy:    true,
	}
}
