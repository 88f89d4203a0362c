package wps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - token bucket over golang.org/x/time/rate
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig contains configuration for the outbound rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst.
	// One calendar request can fan out into a dozen upstream calls.
	BurstSize int

	// WaitTimeout is the maximum time to wait for a token
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns defaults suitable for the WPS API.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5.0,
		BurstSize:         10,
		WaitTimeout:       10 * time.Second,
	}
}

// RateLimitError is returned when no token became available in time.
type RateLimitError struct {
	// Waited is how long the caller waited before giving up
	Waited time.Duration

	// Message provides additional context
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s after %s", e.Message, e.Waited.Round(time.Millisecond))
}

// Is implements errors.Is interface.
func (e *RateLimitError) Is(target error) bool {
	if target == shared.ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// RateLimiter throttles outbound API calls.
type RateLimiter struct {
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	burst := config.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter:     rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst),
		waitTimeout: config.WaitTimeout,
	}
}

// Allow blocks until a request may proceed.
// Caller cancellation is returned as is; running out of wait time yields a *RateLimitError.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	waitCtx := ctx
	if rl.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rl.waitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := rl.limiter.Wait(waitCtx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil {
		return &RateLimitError{Waited: time.Since(start), Message: "timeout waiting for rate limit"}
	}
	// Wait also fails up front when the reservation would outlast the deadline.
	return &RateLimitError{Waited: time.Since(start), Message: err.Error()}
}

// RateLimiterStatus is a snapshot for diagnostics.
type RateLimiterStatus struct {
	Limit           float64
	Burst           int
	AvailableTokens float64
}

// Status returns the current limiter state.
func (rl *RateLimiter) Status() RateLimiterStatus {
	return RateLimiterStatus{
		Limit:           float64(rl.limiter.Limit()),
		Burst:           rl.limiter.Burst(),
		AvailableTokens: rl.limiter.Tokens(),
	}
}
