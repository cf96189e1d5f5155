package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_retries_total",
		Help: "Total number of upstream retry attempts by error class",
	}, []string{"error_class"})

	upstreamRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for upstream retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_retry_exhausted_total",
		Help: "Total number of times upstream retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy selects the retry configuration for the class of the first failure.
type RetryPolicy func(ErrorClass) RetryConfig

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the appropriate retry configuration for an error class.
// Storefront requests sit on the shopper's critical path, so backoffs stay short.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        1 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		return RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// mutationRetryPolicy wraps base for non-idempotent requests. Only a rate-limit rejection,
// which the upstream answers before acting, is retried; a server or network failure may
// hide a mutation that was applied.
func mutationRetryPolicy(base RetryPolicy) RetryPolicy {
	return func(class ErrorClass) RetryConfig {
		if class == ErrorClassRateLimit {
			return base(class)
		}
		cfg := base(class)
		cfg.MaxAttempts = 1
		return cfg
	}
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// The retry configuration is chosen by policy from the class of the first failure.
// It respects context cancellation and adds jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	err := fn()
	if err == nil {
		return nil
	}

	errorClass := classOf(err)
	if !shouldRetry(errorClass) {
		return err
	}

	config := policy(errorClass)
	if config.MaxAttempts <= 1 {
		return err
	}
	lastErr := err
	backoff := config.InitialBackoff

	for attempt := 1; attempt < config.MaxAttempts; attempt++ {
		upstreamRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		upstreamRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str(logging.FieldErrorClass, string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str(logging.FieldErrorClass, string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		err := fn()
		if err == nil {
			log.Info().
				Str(logging.FieldErrorClass, string(errorClass)).
				Int("attempt", attempt+1).
				Msg("Upstream request succeeded after retry")
			return nil
		}
		lastErr = err

		// A deterministic failure after a transient one ends the loop
		if !shouldRetry(classOf(err)) {
			return lastErr
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	upstreamRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str(logging.FieldErrorClass, string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
