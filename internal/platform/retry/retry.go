// Package retry applies a bounded exponential backoff to connection
// establishment. Per-message work is never retried through here.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// Notify is called after every failed attempt that will be retried.
type Notify func(err error, attempt int, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error (see Permanent),
// the attempts are exhausted or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx)
		},
		backoff.WithContext(p.backOff(), ctx),
		func(err error, wait time.Duration) {
			if notify != nil {
				notify(err, attempt, wait)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("gave up after %d attempt(s): %w", attempt, err)
	}
	return nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
