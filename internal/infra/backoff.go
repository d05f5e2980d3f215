package infra

import (
	"time"
)

// RetryPolicy is a bounded exponential backoff. Each error category in the
// engine carries its own policy; retries beyond MaxRetries mean the intent
// is abandoned for this tick.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetryPolicy suits transient network and rate-limit errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		MaxRetries: 5,
	}
}

// Backoff returns the delay before the given retry attempt:
// BaseDelay * 2^retry, capped at MaxDelay.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 0 {
		return p.BaseDelay
	}
	// 2^30 seconds already dwarfs any sane MaxDelay.
	if retry > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<retry)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (p RetryPolicy) Exhausted(retry int) bool {
	return retry >= p.MaxRetries
}
