// Package pipeline runs an ordered list of named steps, one at a time, stopping at the first failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Func is the work of a step.
type Func func(ctx context.Context) error

// Step is a named unit of work. Disabled steps keep their position in the
// list but are not run and not counted.
type Step struct {
	Name    string
	Run     Func
	Enabled bool
	// Mandatory steps cannot be disabled.
	Mandatory bool
}

// Reporter receives the progress marker emitted before each step.
type Reporter interface {
	Step(index, total int)
}

// StepError wraps the failure of a step.
type StepError struct {
	Step  string
	Index int
	Total int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d/%d %s: %v", e.Index, e.Total, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes steps strictly in order.
type Runner struct {
	steps    []Step
	reporter Reporter
	logger   *slog.Logger
}

// New constructs a Runner. Step names must be unique and non-empty.
func New(reporter Reporter, logger *slog.Logger, steps ...Step) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("step %d has no name", i+1)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.Name)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("step %q has no function", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &Runner{
		steps:    append([]Step(nil), steps...),
		reporter: reporter,
		logger:   logger,
	}, nil
}

// Steps returns every step in order, enabled or not.
func (r *Runner) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

// Active returns the enabled steps in order.
func (r *Runner) Active() []Step {
	out := make([]Step, 0, len(r.steps))
	for _, s := range r.steps {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SetEnabled toggles a step without moving it.
func (r *Runner) SetEnabled(name string, enabled bool) error {
	for i := range r.steps {
		if r.steps[i].Name != name {
			continue
		}
		if !enabled && r.steps[i].Mandatory {
			return fmt.Errorf("step %q cannot be disabled", name)
		}
		r.steps[i].Enabled = enabled
		return nil
	}
	return fmt.Errorf("unknown step %q", name)
}

// Run executes the enabled steps in order. The first failing step aborts the
// run; later steps are never invoked.
func (r *Runner) Run(ctx context.Context) error {
	active := r.Active()
	total := len(active)
	for i, s := range active {
		index := i + 1
		if err := ctx.Err(); err != nil {
			return &StepError{Step: s.Name, Index: index, Total: total, Err: fmt.Errorf("cancelled before start: %w", err)}
		}
		if r.reporter != nil {
			r.reporter.Step(index, total)
		}
		r.logger.Debug("running step", "step", s.Name, "index", index, "total", total)
		if err := s.Run(ctx); err != nil {
			return &StepError{Step: s.Name, Index: index, Total: total, Err: err}
		}
	}
	return nil
}
