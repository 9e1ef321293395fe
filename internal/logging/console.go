package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// consoleTimeFormat is the timestamp layout of timestamped progress lines.
const consoleTimeFormat = time.DateTime

// Console writes human-readable progress lines to standard output.
// Messages carry a timestamp, plain lines (step markers, per-item notes) do not.
type Console struct {
	stamped *slog.Logger
	plain   *slog.Logger
}

// NewConsole constructs a Console writing to w at the given level.
func NewConsole(w io.Writer, level Level) *Console {
	if w == nil {
		w = os.Stdout
	}
	noColor := !isTerminal(w)

	stamped := tint.NewHandler(w, &tint.Options{
		Level:      slog.Level(level),
		TimeFormat: consoleTimeFormat,
		NoColor:    noColor,
	})
	plain := tint.NewHandler(w, &tint.Options{
		Level:   slog.Level(level),
		NoColor: noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	})

	return &Console{
		stamped: slog.New(stamped),
		plain:   slog.New(plain),
	}
}

// Discard returns a Console that drops every line.
func Discard() *Console {
	return NewConsole(io.Discard, LevelError+1)
}

// Message prints a timestamped progress message.
func (c *Console) Message(msg string, args ...any) {
	c.stamped.Info(msg, args...)
}

// Line prints an untimestamped progress line.
func (c *Console) Line(msg string, args ...any) {
	c.plain.Info(msg, args...)
}

// Step prints the marker emitted before step index (1-based) of total.
func (c *Console) Step(index, total int) {
	c.plain.Info(fmt.Sprintf("-------- STEP %d/%d --------", index, total))
}

// Logger exposes the timestamped logger, e.g. for command output forwarding.
func (c *Console) Logger() *slog.Logger {
	return c.stamped
}
