package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/marcodamonte/concurrency/signal-deadlock/config"
	"github.com/marcodamonte/concurrency/signal-deadlock/debug"
	"github.com/marcodamonte/concurrency/signal-deadlock/lock"
	"github.com/marcodamonte/concurrency/signal-deadlock/report"
	"github.com/marcodamonte/concurrency/signal-deadlock/scenario"
	"github.com/sirupsen/logrus"
)

func section(title string) {
	fmt.Printf("\n━━━ %s ━━━\n", title)
}

// runDemo replays every delivery instant through the simulated harness, so
// all outcomes can be seen in one run without racing a shell against the
// clock. Hung owners are left behind, still blocked, and show up in the
// goroutine dumps.
func runDemo(cfg *config.Config, log *logrus.Entry) {
	var reports int64
	lock.ConfigureTracing(lock.TraceOptions{
		Timeout:             time.Second,
		Out:                 os.Stdout,
		OnPotentialDeadlock: func() { atomic.AddInt64(&reports, 1) },
		Log:                 log,
	})

	cases := []struct {
		title string
		sim   scenario.SimConfig
	}{
		{"A: signal before the lock is taken", scenario.SimConfig{At: scenario.BeforeAcquire}},
		{"B: signal while the lock is held", scenario.SimConfig{At: scenario.DuringHold}},
		{"C: signal after the lock is released", scenario.SimConfig{At: scenario.AfterRelease}},
		{"B, masked: signal held back until release", scenario.SimConfig{At: scenario.DuringHold, MaskDuringHold: true}},
		{"B, traced: go-deadlock watching the lock", scenario.SimConfig{At: scenario.DuringHold, Traced: true}},
	}

	for _, c := range cases {
		section(c.title)

		sim := c.sim
		sim.Hold = 50 * time.Millisecond
		sim.Timeout = 300 * time.Millisecond
		sim.Signal = cfg.Sig()
		sim.Observer = report.NewConsole(os.Stdout, cfg.Color)
		sim.Log = log

		res, err := scenario.Simulate(sim)
		if err != nil {
			log.WithError(err).Error("simulation failed")
			continue
		}

		if res.Completed {
			fmt.Printf("  → owner finished (phase %s)\n", res.Phase)
			continue
		}

		fmt.Printf("  → owner still %s after %s: self-deadlock, lock %s\n", res.Phase, sim.Timeout, res.LockState)
		debug.Dump(os.Stdout, debug.Blocked(debug.Goroutines(), "sync.Mutex.Lock"))
	}

	section("summary")
	fmt.Printf("  traced-mutex reports: %d\n", atomic.LoadInt64(&reports))
	fmt.Println("  stuck goroutines stay blocked until the process exits")
}
