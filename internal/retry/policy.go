// Package retry holds the backoff policy applied to transport attempts.
package retry

import "time"

// Policy controls how many transport attempts are made for one request and
// how long the gateway waits between them. Whether a given failure is
// retryable at all is decided by its result status, not by the policy.
type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
}

func DefaultPolicy() *Policy {
	return &Policy{
		InitialInterval:    250 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// attempt number (1-based) failed.
func (p *Policy) ShouldRetry(attempt int32) bool {
	return attempt < p.MaximumAttempts
}

// NextRetryDelay returns the backoff delay to apply after the given attempt.
func (p *Policy) NextRetryDelay(attempt int32) time.Duration {
	return CalculateBackoff(p, attempt)
}

func (p *Policy) WithInitialInterval(d time.Duration) *Policy {
	p.InitialInterval = d
	return p
}

func (p *Policy) WithBackoffCoefficient(c float64) *Policy {
	p.BackoffCoefficient = c
	return p
}

func (p *Policy) WithMaximumInterval(d time.Duration) *Policy {
	p.MaximumInterval = d
	return p
}

func (p *Policy) WithMaximumAttempts(n int32) *Policy {
	p.MaximumAttempts = n
	return p
}
