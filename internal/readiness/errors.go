package readiness

import (
	"fmt"
	"time"
)

// ExhaustedError reports a service still unreachable when the budget ran out.
type ExhaustedError struct {
	Attempts int
	Budget   time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("service still unreachable after %d attempts within %s: %v", e.Attempts, e.Budget, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// FatalError reports a probe failure that is not worth retrying.
type FatalError struct {
	Attempt int
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("probe failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
