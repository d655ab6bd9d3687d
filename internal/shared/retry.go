package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default [Sleeper] backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that [Backoff.Retry] stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff is a bounded exponential retry policy.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Factor   float64
	Max      time.Duration
	Sleep    Sleeper
}

// DefaultBackoff is used for session confirmation after the browser login round trip.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 5, Base: 500 * time.Millisecond, Factor: 2, Max: 5 * time.Second, Sleep: Sleep}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base)
	for range attempt {
		d *= b.Factor
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Retry calls fn until it returns nil, a [Permanent] error, ctx ends or attempts run out.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := b.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(b.Attempts, 1)

	var err error
	for attempt := range attempts {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt == attempts-1 {
			break
		}
		if serr := sleep(ctx, b.Delay(attempt)); serr != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, serr)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
