// Package retry runs a remote call with a bounded number of attempts, a hard
// per-attempt timeout and a fixed pause between attempts. Only transient
// failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
)

const (
	DefaultMaxAttempts  = 3
	DefaultTimeout      = 30 * time.Second
	LightTimeout        = 20 * time.Second
	DefaultBackoff      = 2 * time.Second
	ExhaustedMessage    = "server unavailable, try again in a few minutes"
	reconnectingMessage = "reconnecting, attempt %d/%d"
)

type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
	// Backoff is a fixed pause; it does not grow between attempts.
	Backoff time.Duration
}

func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Timeout: DefaultTimeout, Backoff: DefaultBackoff}
}

// Light is used for secondary calls such as writing a profile after sign-up.
func Light() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Timeout: LightTimeout, Backoff: DefaultBackoff}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// State is reported to the caller after every failed attempt that will be retried.
type State struct {
	// Attempt is the attempt that just failed, counted from 1.
	Attempt     int
	MaxAttempts int
	LastErr     error
	Message     string
}

// FailedError is returned once every attempt failed with a transient error.
type FailedError struct {
	Attempts int
	Last     error
	Message  string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FailedError) Unwrap() error {
	return e.Last
}

var ErrNilOperation = errors.New("retry: nil operation")

// Run executes op until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. onAttemptFailure may be nil.
func Run[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), onAttemptFailure func(State)) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}
	p = p.normalized()

	for attempt := 1; ; attempt++ {
		v, err := runAttempt(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}

		// the caller gave up, not the server
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !apperr.IsTransient(err) {
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			return zero, &FailedError{Attempts: attempt, Last: err, Message: ExhaustedMessage}
		}

		if onAttemptFailure != nil {
			onAttemptFailure(State{
				Attempt:     attempt,
				MaxAttempts: p.MaxAttempts,
				LastErr:     err,
				Message:     fmt.Sprintf(reconnectingMessage, attempt, p.MaxAttempts),
			})
		}

		if err := sleep(ctx, p.Backoff); err != nil {
			return zero, err
		}
	}
}

// Do is Run for calls that only return an error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onAttemptFailure func(State)) error {
	if op == nil {
		return ErrNilOperation
	}
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, onAttemptFailure)
	return err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			// whatever op returned, the attempt ran out of time
			return r.v, fmt.Errorf("attempt timed out: %w", context.DeadlineExceeded)
		}
		return r.v, r.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		// op ignored its context; stop waiting for it
		return zero, fmt.Errorf("attempt timed out: %w", context.DeadlineExceeded)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
