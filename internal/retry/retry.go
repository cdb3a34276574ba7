// Package retry wraps exponential backoff for flaky upstream calls and
// tracks upstream reachability.
package retry

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Policy configures exponential backoff.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
	// MaxRetries caps the number of retries after the first attempt; 0 means
	// only MaxElapsedTime limits retrying.
	MaxRetries uint64
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2,
		MaxRetries:      3,
	}
}

// BackOff builds a fresh backoff.BackOff from the policy.
func (p Policy) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = p.MaxElapsedTime
	b.Reset()

	var out backoff.BackOff = b
	if p.MaxRetries > 0 {
		out = backoff.WithMaxRetries(out, p.MaxRetries)
	}
	return out
}

// Do calls fn until it succeeds, returns a Permanent error, the policy gives
// up, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func() error) error {
	return backoff.Retry(fn, backoff.WithContext(p.BackOff(), ctx))
}

// Permanent wraps err so Do stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
