package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryPolicy {
	return func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       attempts,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		}
	}
}

func upstreamErr(class ErrorClass) error {
	return &UpstreamError{Operation: "test", ErrorClass: class, Message: string(class)}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
	if config.InitialBackoff > config.MaxBackoff {
		t.Errorf("InitialBackoff %v exceeds MaxBackoff %v", config.InitialBackoff, config.MaxBackoff)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{name: "server error config", errorClass: ErrorClassServer, expectedInitial: 200 * time.Millisecond, expectedMax: time.Second, expectedAttempts: 3},
		{name: "rate limit config", errorClass: ErrorClassRateLimit, expectedInitial: time.Second, expectedMax: 5 * time.Second, expectedAttempts: 2},
		{name: "network error config", errorClass: ErrorClassNetwork, expectedInitial: 500 * time.Millisecond, expectedMax: 2 * time.Second, expectedAttempts: 3},
		{name: "unknown error class uses default", errorClass: "", expectedInitial: 200 * time.Millisecond, expectedMax: 2 * time.Second, expectedAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("retryWithBackoff() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return upstreamErr(ErrorClassServer)
		}
		return nil
	})

	if err != nil {
		t.Errorf("retryWithBackoff() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return upstreamErr(ErrorClassServer)
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Error("exhausted error should still carry the last upstream error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	for _, class := range []ErrorClass{ErrorClassClient, ErrorClassGraphQL} {
		calls := 0
		err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
			calls++
			return upstreamErr(class)
		})

		if err == nil || errors.Is(err, ErrRetryExhausted) {
			t.Errorf("%s: error = %v, want the original error", class, err)
		}
		if calls != 1 {
			t.Errorf("%s: calls = %d, want 1", class, calls)
		}
	}
}

func TestRetryWithBackoff_StopsOnDeterministicFailure(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		calls++
		if calls == 1 {
			return upstreamErr(ErrorClassServer)
		}
		return upstreamErr(ErrorClassClient)
	})

	if classOf(err) != ErrorClassClient {
		t.Errorf("error class = %q, want client", classOf(err))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryWithBackoff_PolicyChosenByFirstFailure(t *testing.T) {
	var seen ErrorClass
	policy := func(class ErrorClass) RetryConfig {
		seen = class
		return fastRetry(2)(class)
	}

	_ = retryWithBackoff(context.Background(), policy, func() error {
		return upstreamErr(ErrorClassRateLimit)
	})

	if seen != ErrorClassRateLimit {
		t.Errorf("policy called with %q, want rate_limit", seen)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := func(ErrorClass) RetryConfig {
		return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute, BackoffMultiplier: 2}
	}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retryWithBackoff(ctx, slow, func() error {
		calls++
		return upstreamErr(ErrorClassNetwork)
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the backoff")
	}
}

func TestRetryWithBackoff_NilPolicyUsesDefaults(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), nil, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("retryWithBackoff(nil policy) = %v after %d calls", err, calls)
	}
}
