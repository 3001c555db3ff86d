package scenario

import (
	"os"
	"time"

	"github.com/go-errors/errors"
	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
	"github.com/marcodamonte/concurrency/signal-deadlock/lock"
	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/sirupsen/logrus"
)

// Instant is the point in the owner's sequence at which the harness raises
// the signal.
type Instant int

const (
	Never Instant = iota
	BeforeAcquire
	DuringHold
	AfterRelease
)

func (i Instant) String() string {
	switch i {
	case Never:
		return "never"
	case BeforeAcquire:
		return "before acquire"
	case DuringHold:
		return "during hold"
	case AfterRelease:
		return "after release"
	default:
		return "unknown"
	}
}

// SimConfig describes one simulated run.
type SimConfig struct {
	At Instant

	// Hold defaults to 20ms. The outcome does not depend on it: delivery is
	// tied to the owner's progress, not to the clock.
	Hold time.Duration

	// Timeout is how long the harness waits for the owner before giving up
	// on it. Defaults to 500ms.
	Timeout time.Duration

	MaskDuringHold bool

	// Traced uses lock.NewTraced. Configure tracing beforehand.
	Traced bool

	Signal   os.Signal
	Observer Observer // sees every event after the harness has recorded it
	Log      *logrus.Entry
}

func (c *SimConfig) withDefaults() SimConfig {
	out := *c
	if out.Hold <= 0 {
		out.Hold = 20 * time.Millisecond
	}
	if out.Timeout <= 0 {
		out.Timeout = 500 * time.Millisecond
	}
	if out.Signal == nil {
		out.Signal = interrupt.UserSignal
	}
	out.Log = logging.OrDiscard(out.Log)
	return out
}

// Result is what the harness saw.
type Result struct {
	Instant Instant
	Events  []Event

	// Completed is false when the owner had not finished by the timeout.
	// The owner goroutine is then abandoned, blocked for good, the way the
	// real process would have to be killed.
	Completed bool

	Phase     Phase
	LockState lock.State
	Stats     interrupt.Stats
}

// Kinds returns the kinds of the recorded events, in order.
func (r Result) Kinds() []Kind {
	return kinds(r.Events)
}

// Simulate runs the owner on a fresh goroutine with a fresh lock and
// dispatcher, raising the signal at cfg.At. The raise is driven by the
// owner's own events, so every instant is reproduced exactly.
func Simulate(cfg SimConfig) (Result, error) {
	cfg = cfg.withDefaults()
	log := cfg.Log.WithField("instant", cfg.At.String())

	var mu *lock.Mutex
	if cfg.Traced {
		mu = lock.NewTraced("shared", log)
	} else {
		mu = lock.New("shared", log)
	}

	irq := interrupt.New(log)
	rec := &Recorder{}

	if err := irq.Register(cfg.Signal, NewHandler(mu, Observers{rec, cfg.Observer})); err != nil {
		return Result{}, err
	}

	var raiseErr error
	raise := func() {
		raiseErr = irq.Raise(cfg.Signal)
	}

	trigger := ObserverFunc(func(e Event) {
		switch {
		case cfg.At == DuringHold && e.Kind == KindLocked,
			cfg.At == AfterRelease && e.Kind == KindUnlocked:
			raise()
		}
	})

	owner := NewOwner(OwnerConfig{
		Lock:           mu,
		Interrupts:     irq,
		Hold:           cfg.Hold,
		Signal:         cfg.Signal,
		MaskDuringHold: cfg.MaskDuringHold,
		Observer:       Observers{rec, cfg.Observer, trigger},
		Log:            log,
	})

	if cfg.At == BeforeAcquire {
		raise()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		owner.Run()
	}()

	completed := true
	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		completed = false
		log.WithField("phase", owner.Phase()).Warn("owner did not finish; abandoning it")
	}

	res := Result{
		Instant:   cfg.At,
		Events:    rec.Events(),
		Completed: completed,
		Phase:     owner.Phase(),
		LockState: mu.State(),
		Stats:     irq.Stats(),
	}

	// raiseErr is written on the owner goroutine; only read it once that
	// goroutine is known to be finished.
	if completed && raiseErr != nil {
		return res, errors.WrapPrefix(raiseErr, "raising "+interrupt.Name(cfg.Signal), 0)
	}
	return res, nil
}
