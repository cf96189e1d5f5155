package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	upstreamRequestsLeft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_upstream_requests_left",
		Help: "Requests left in the current commerce API rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_rate_limit_blocks_total",
		Help: "Total number of upstream requests blocked by the rate limit tracker",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_rate_limit_throttles_total",
		Help: "Total number of upstream requests throttled by the rate limit tracker",
	})
)

// ThrottleDelay is how long a request waits when the budget is in the warning range.
var ThrottleDelay = 250 * time.Millisecond

// Tracker monitors the upstream rate limit and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
// A nil Redis client makes the tracker permissive: state is never stored and every request
// is allowed.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		return healthyState(), nil
	}

	fields, err := t.redis.HGetAll(ctx, RedisKeyState).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return healthyState(), nil
	}

	left, err := strconv.Atoi(fields[fieldRequestsLeft])
	if err != nil {
		return nil, fmt.Errorf("parse requests left: %w", err)
	}
	resetMs, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}
	updateMs, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &RateLimitState{
		RequestsLeft: left,
		ResetAt:      time.UnixMilli(resetMs),
		LastUpdate:   time.UnixMilli(updateMs),
	}
	state.UpdateHealth()

	return state, nil
}

// ParseHeaders extracts a state from upstream response headers.
// Returns nil without error when the headers are absent.
func ParseHeaders(headers http.Header) (*RateLimitState, error) {
	leftStr := headers.Get(HeaderRequestsLeft)
	if leftStr == "" {
		return nil, nil
	}

	left, err := strconv.Atoi(leftStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRequestsLeft, err)
	}

	resetStr := headers.Get(HeaderResetMs)
	if resetStr == "" {
		return nil, fmt.Errorf("%s header missing", HeaderResetMs)
	}
	resetMs, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderResetMs, err)
	}

	now := time.Now()
	state := &RateLimitState{
		RequestsLeft: left,
		ResetAt:      now.Add(time.Duration(resetMs) * time.Millisecond),
		LastUpdate:   now,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders parses rate limit headers and stores the state in Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := ParseHeaders(headers)
	if err != nil || state == nil {
		return err
	}

	upstreamRequestsLeft.Set(float64(state.RequestsLeft))

	if t.redis != nil {
		ttl := state.TimeUntilReset() + time.Minute
		pipe := t.redis.TxPipeline()
		pipe.HSet(ctx, RedisKeyState,
			fieldRequestsLeft, state.RequestsLeft,
			fieldResetAt, state.ResetAt.UnixMilli(),
			fieldLastUpdate, state.LastUpdate.UnixMilli(),
		)
		pipe.Expire(ctx, RedisKeyState, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int(logging.FieldRequestsLeft, state.RequestsLeft).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int(logging.FieldRequestsLeft, state.RequestsLeft).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int(logging.FieldRequestsLeft, state.RequestsLeft).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked. In the warning range it waits
// ThrottleDelay (or until ctx is done) before allowing the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int(logging.FieldRequestsLeft, state.RequestsLeft).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream rate limit critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int(logging.FieldRequestsLeft, state.RequestsLeft).
			Msg("Upstream rate limit warning - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(ThrottleDelay):
		}
	}

	return true, nil
}
