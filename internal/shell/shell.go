// Package shell runs the external command-line tools the installer drives.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/mage2-devtools/m2install/internal/logging"
)

// Command describes a single external process invocation.
type Command struct {
	// Name is the executable, looked up in PATH when not a path.
	Name string
	// Args are passed verbatim; no shell is involved.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the current process environment.
	Env []string
}

// String renders the command for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Runner launches a command and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports an external command that could not be started or exited non-zero.
type ExitError struct {
	Command Command
	// Code is the exit status, -1 when the process did not run to completion.
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("%s exited with status %d", e.Command.Name, e.Code)
	}
	return fmt.Sprintf("%s failed: %v", e.Command.Name, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec runs commands with os/exec, forwarding their output to a logger.
type Exec struct {
	logger *slog.Logger
	// CheckExitStatus turns a failed command into an error. When false the
	// failure is logged and swallowed.
	CheckExitStatus bool
	// Stdout and Stderr override output forwarding when set.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExec constructs an Exec runner.
func NewExec(logger *slog.Logger, checkExitStatus bool) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{logger: logger, CheckExitStatus: checkExitStatus}
}

// Run starts cmd and waits for it.
func (e *Exec) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdout, stderr := e.Stdout, e.Stderr
	var flush []*logging.Writer
	if stdout == nil {
		w := logging.NewStreamWriter(e.logger, "stdout")
		flush = append(flush, w)
		stdout = w
	}
	if stderr == nil {
		w := logging.NewStreamWriter(e.logger, "stderr")
		flush = append(flush, w)
		stderr = w
	}
	c.Stdout = stdout
	c.Stderr = stderr

	e.logger.Debug("running command", "command", cmd.String(), "dir", cmd.Dir)
	runErr := c.Run()
	for _, w := range flush {
		w.Flush()
	}
	if runErr == nil {
		return nil
	}

	exitErr := &ExitError{Command: cmd, Code: -1, Err: runErr}
	var procErr *exec.ExitError
	if errors.As(runErr, &procErr) {
		exitErr.Code = procErr.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
	}
	if !e.CheckExitStatus {
		e.logger.Warn("command failed, continuing", "command", cmd.String(), "error", exitErr)
		return nil
	}
	return exitErr
}
