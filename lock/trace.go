package lock

import (
	"io"
	"time"

	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// TraceOptions configures the instrumentation behind NewTraced.
type TraceOptions struct {
	// Timeout after which a Lock that is still waiting gets reported. Zero
	// keeps go-deadlock's default of 30s.
	Timeout time.Duration

	// Out receives go-deadlock's stack reports. Nil keeps stderr.
	Out io.Writer

	// OnPotentialDeadlock runs after each report. Nil logs a warning.
	// It is called while go-deadlock holds its internal bookkeeping lock, so
	// it must not block and must not take a traced mutex.
	OnPotentialDeadlock func()

	Log *logrus.Entry
}

// ConfigureTracing installs process-wide options for every traced mutex.
// Call it once, before the first traced mutex is used.
//
// go-deadlock's default reaction to a report is os.Exit(2); it is always
// replaced here, because a hung process must stay hung.
func ConfigureTracing(opts TraceOptions) {
	log := logging.OrDiscard(opts.Log)

	if opts.Timeout > 0 {
		deadlock.Opts.DeadlockTimeout = opts.Timeout
	}
	if opts.Out != nil {
		deadlock.Opts.LogBuf = opts.Out
	}

	report := opts.OnPotentialDeadlock
	if report == nil {
		report = func() {
			log.Warn("potential deadlock reported by traced mutex")
		}
	}
	deadlock.Opts.OnPotentialDeadlock = report
}
