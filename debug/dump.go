// Package debug lets an operator look inside a process that has wedged
// itself. Nothing here can unblock a goroutine; it only shows where each one
// is parked.
package debug

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Goroutine is one entry of a runtime.Stack(all) snapshot.
//
// Key state labels to recognise:
//
//	[running]          the goroutine taking the snapshot
//	[sync.Mutex.Lock]  blocked in sync.Mutex.Lock (Go >= 1.22)
//	[semacquire]       the same, on older runtimes
//	[chan receive]     blocked on <-ch
//	[select]           blocked in a select whose cases all block
//	[sleep]            inside time.Sleep
//
// A goroutine pinned with runtime.LockOSThread carries ", locked to thread"
// after its state.
type Goroutine struct {
	ID     int
	State  string
	Frames []string // function and file lines, in stack order
}

// Calls reports whether any frame mentions fn, e.g. "sync.(*Mutex).Lock".
func (g Goroutine) Calls(fn string) bool {
	return lo.ContainsBy(g.Frames, func(frame string) bool {
		return strings.Contains(frame, fn)
	})
}

// Goroutines captures every goroutine's stack.
func Goroutines() []Goroutine {
	buf := make([]byte, 256*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return Parse(string(buf[:n]))
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Parse splits a runtime.Stack(all) dump into goroutines. Blocks whose
// header does not parse are skipped.
func Parse(raw string) []Goroutine {
	var out []Goroutine
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")

		g, ok := parseHeader(lines[0])
		if !ok {
			continue
		}
		g.Frames = lo.Map(lines[1:], func(l string, _ int) string { return strings.TrimSpace(l) })
		out = append(out, g)
	}
	return out
}

// parseHeader reads "goroutine 18 [sync.Mutex.Lock, 2 minutes]:".
func parseHeader(line string) (Goroutine, bool) {
	rest, ok := strings.CutPrefix(line, "goroutine ")
	if !ok {
		return Goroutine{}, false
	}
	idStr, state, ok := strings.Cut(rest, " [")
	if !ok {
		return Goroutine{}, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Goroutine{}, false
	}
	state = strings.TrimSuffix(state, ":")
	state = strings.TrimSuffix(state, "]")
	return Goroutine{ID: id, State: state}, true
}

// Blocked keeps the goroutines whose state contains label.
func Blocked(gs []Goroutine, label string) []Goroutine {
	return lo.Filter(gs, func(g Goroutine, _ int) bool {
		return strings.Contains(g.State, label)
	})
}

// Dump prints each goroutine with its state and top stack frames.
func Dump(w io.Writer, gs []Goroutine) {
	fmt.Fprintln(w)
	for _, g := range gs {
		fmt.Fprintf(w, "  goroutine %d [%s]:\n", g.ID, g.State)

		// Eight lines: four frames, each a function line and a file line.
		limit := min(len(g.Frames), 8)
		for _, frame := range g.Frames[:limit] {
			fmt.Fprintf(w, "    %s\n", frame)
		}
		if len(g.Frames) > limit {
			fmt.Fprintf(w, "    ... (+%d lines)\n", len(g.Frames)-limit)
		}
		fmt.Fprintln(w)
	}
}
