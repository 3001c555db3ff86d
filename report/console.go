// Package report prints the scenario's events as the human-readable lines an
// operator (or a test reading stdout) watches for.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
	"github.com/marcodamonte/concurrency/signal-deadlock/scenario"
)

// Console writes one line per event. Only the presence and order of
// "locked mutex", "unlocked mutex" and "received signal" carry meaning; the
// instructions line is for humans.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	hint   *color.Color
	notice *color.Color
}

// NewConsole returns a Console writing to out. With colored set, colour is
// still only used when out is a terminal and NO_COLOR is unset.
func NewConsole(out io.Writer, colored bool) *Console {
	hint := color.New(color.FgCyan)
	notice := color.New(color.FgYellow, color.Bold)
	if colored && colorable(out) {
		hint.EnableColor()
		notice.EnableColor()
	} else {
		hint.DisableColor()
		notice.DisableColor()
	}
	return &Console{out: out, hint: hint, notice: notice}
}

// colorable decides for out itself; color.NoColor only describes stdout.
func colorable(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Observe implements scenario.Observer.
func (c *Console) Observe(e scenario.Event) {
	line := Line(e)
	switch e.Kind {
	case scenario.KindInstructions:
		line = c.hint.Sprint(line)
	case scenario.KindSignalReceived:
		line = c.notice.Sprint(line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// Line renders an event without colour.
func Line(e scenario.Event) string {
	switch e.Kind {
	case scenario.KindInstructions:
		return fmt.Sprintf("run `kill -s %s %d` in another terminal to cause a deadlock",
			interrupt.Name(e.Signal), e.PID)
	default:
		return e.Kind.String()
	}
}
