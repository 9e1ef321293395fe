package readiness

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultBudget is the total time a Waiter keeps probing.
	DefaultBudget = 300 * time.Second
	// DefaultInterval is the pause between two probes.
	DefaultInterval = 3 * time.Second
)

// Probe checks the dependent service once.
type Probe func(ctx context.Context) error

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Waiter polls a Probe with a fixed interval until it succeeds or the budget runs out.
type Waiter struct {
	budget    time.Duration
	interval  time.Duration
	retryable func(error) bool
	sleep     Sleeper
	before    func(attempt int, remaining time.Duration)
	onFailure func(err error)
}

// Option is a functional option for Waiter configuration.
type Option func(*Waiter)

// WithInterval sets the pause between probes.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) {
		w.interval = d
	}
}

// WithRetryable sets the classifier deciding which probe failures are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(w *Waiter) {
		w.retryable = fn
	}
}

// WithSleeper replaces the real timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(w *Waiter) {
		w.sleep = s
	}
}

// WithBeforeProbe registers a callback invoked before every probe.
func WithBeforeProbe(fn func(attempt int, remaining time.Duration)) Option {
	return func(w *Waiter) {
		w.before = fn
	}
}

// WithOnFailure registers a callback invoked after every failed probe,
// typically to drop a broken connection before the next attempt.
func WithOnFailure(fn func(err error)) Option {
	return func(w *Waiter) {
		w.onFailure = fn
	}
}

// New constructs a Waiter with the given budget. Without WithRetryable every
// failure is fatal.
func New(budget time.Duration, opts ...Option) *Waiter {
	w := &Waiter{
		budget:    budget,
		interval:  DefaultInterval,
		retryable: func(error) bool { return false },
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	return w
}

// MaxAttempts is the number of probes made against a service that never answers.
func (w *Waiter) MaxAttempts() int {
	if w.budget <= 0 {
		return 1
	}
	return int((w.budget + w.interval - 1) / w.interval)
}

// Wait probes until success. Each retryable failure consumes one interval of
// the budget; the wait ends with an *ExhaustedError once nothing is left and
// with a *FatalError on a failure that is not retryable. No sleep follows the
// last probe.
func (w *Waiter) Wait(ctx context.Context, probe Probe) error {
	remaining := w.budget
	for attempt := 1; ; attempt++ {
		if w.before != nil {
			w.before(attempt, remaining)
		}

		err := probe(ctx)
		if err == nil {
			return nil
		}
		if w.onFailure != nil {
			w.onFailure(err)
		}

		if !w.retryable(err) {
			return &FatalError{Attempt: attempt, Err: err}
		}

		remaining -= w.interval
		if remaining <= 0 {
			return &ExhaustedError{Attempts: attempt, Budget: w.budget, Err: err}
		}

		if sleepErr := w.sleep(ctx, w.interval); sleepErr != nil {
			return fmt.Errorf("readiness wait cancelled after %d attempts: %w", attempt, sleepErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
