package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-errors/errors"
	"github.com/marcodamonte/concurrency/signal-deadlock/config"
	"github.com/marcodamonte/concurrency/signal-deadlock/debug"
	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
	"github.com/marcodamonte/concurrency/signal-deadlock/lock"
	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/marcodamonte/concurrency/signal-deadlock/report"
	"github.com/marcodamonte/concurrency/signal-deadlock/scenario"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(nil, err)
	}

	sig := cfg.Sig()
	log := logging.New(os.Stderr, logrus.Fields{
		"pid":    os.Getpid(),
		"signal": interrupt.Name(sig),
	})

	if cfg.Demo {
		runDemo(cfg, log)
		return
	}

	if err := run(cfg, sig, log); err != nil {
		fatal(log, err)
	}
}

// run installs the handler and then plays the lock owner on the main
// goroutine. If the signal lands while the lock is held, run never returns.
func run(cfg *config.Config, sig os.Signal, log *logrus.Entry) error {
	var mu *lock.Mutex
	if cfg.Trace {
		lock.ConfigureTracing(lock.TraceOptions{Timeout: cfg.DeadlockTimeout, Out: os.Stderr, Log: log})
		mu = lock.NewTraced("mutex", log)
	} else {
		mu = lock.New("mutex", log)
	}

	console := report.NewConsole(os.Stdout, cfg.Color)

	irq := interrupt.New(log)
	if err := irq.Register(sig, scenario.NewHandler(mu, console)); err != nil {
		return err
	}
	stop := irq.Notify(sig)
	defer stop()

	if cfg.DebugAddr != "" {
		srv, err := debug.Serve(cfg.DebugAddr, log)
		if err != nil {
			log.WithError(err).Warn("continuing without pprof")
		} else {
			defer srv.Close()
		}
	}

	if cfg.SelfSignalAfter > 0 {
		time.AfterFunc(cfg.SelfSignalAfter, func() {
			if err := signalSelf(sig); err != nil {
				log.WithError(err).Error("could not signal self")
			}
		})
	}

	// One OS thread plays the interrupted thread for the whole run.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	owner := scenario.NewOwner(scenario.OwnerConfig{
		Lock:           mu,
		Interrupts:     irq,
		Hold:           cfg.Hold,
		Signal:         sig,
		PID:            os.Getpid(),
		MaskDuringHold: cfg.MaskDuringHold,
		Observer:       console,
		Log:            log,
	})
	owner.Run()

	// Run's last safepoint may have come before the relay raised a late
	// signal. Flush the relay and deliver whatever it had.
	stop()
	irq.Safepoint()
	return nil
}

func signalSelf(sig os.Signal) error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

func fatal(log *logrus.Entry, err error) {
	stackTrace := errors.Wrap(err, 0).ErrorStack()
	if log != nil {
		log.Error(stackTrace)
	}
	fmt.Fprintf(os.Stderr, "startup failed: %s\n\n%s", err, stackTrace)
	os.Exit(1)
}
