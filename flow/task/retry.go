package task

import (
	"math"
	"time"
)

// RetryPolicy decides whether and when a failed task runs again.
//
// The delay before attempt n (counting from zero) is Delay * Backoff^n, so
// Backoff 1 gives a constant delay and Backoff 2 doubles it per attempt.
type RetryPolicy struct {
	// Matches reports whether an error is retryable. Nil matches every
	// error. Compose with errors.Is / errors.As for type-based policies.
	Matches func(error) bool

	// MaxRetries is the number of re-runs after the first attempt.
	MaxRetries int

	// Delay is the base delay before a retry.
	Delay time.Duration

	// Backoff multiplies the delay per attempt. Values below 1 are treated
	// as 1.
	Backoff float64
}

// DefaultPolicy retries every error up to ten times with no delay.
var DefaultPolicy = RetryPolicy{MaxRetries: 10}

// ShouldRetry reports whether a task that failed with err on attempt
// retryCount gets another run.
func (p RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if retryCount >= p.MaxRetries {
		return false
	}
	if p.Matches != nil && !p.Matches(err) {
		return false
	}
	return true
}

// RetryDelay returns the delay before the retry following attempt retryCount.
func (p RetryPolicy) RetryDelay(retryCount int) time.Duration {
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(backoff, float64(retryCount)))
}
