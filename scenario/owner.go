// Package scenario wires the lock owner and the interrupt handler around one
// shared non-reentrant lock, and provides a deterministic harness that
// delivers the signal at a chosen instant.
package scenario

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/sirupsen/logrus"
)

// Phase is the lock owner's position in its state machine.
type Phase int32

const (
	Start Phase = iota
	HoldingLock
	Done
)

func (p Phase) String() string {
	switch p {
	case Start:
		return "start"
	case HoldingLock:
		return "holding lock"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// OwnerConfig holds Owner construction parameters.
type OwnerConfig struct {
	// Lock is shared with the interrupt handler.
	Lock sync.Locker

	// Interrupts delivers signals onto the goroutine that calls Run.
	Interrupts *interrupt.Dispatcher

	// Hold is how long the lock is held. This is the vulnerability window.
	Hold time.Duration

	// Signal and PID only appear in the instructions event.
	Signal os.Signal
	PID    int

	// MaskDuringHold blocks delivery from just before Lock until just after
	// Unlock. Off by default: masking removes the hazard.
	MaskDuringHold bool

	Observer Observer
	Log      *logrus.Entry
}

func (c *OwnerConfig) withDefaults() OwnerConfig {
	out := *c
	if out.Signal == nil {
		out.Signal = interrupt.UserSignal
	}
	if out.PID == 0 {
		out.PID = os.Getpid()
	}
	if out.Observer == nil {
		out.Observer = Observers{}
	}
	out.Log = logging.OrDiscard(out.Log)
	return out
}

// Owner is the main sequence: take the lock, hold it for a while, release it.
type Owner struct {
	cfg   OwnerConfig
	phase atomic.Int32
}

// NewOwner returns an Owner in the Start phase.
func NewOwner(cfg OwnerConfig) *Owner {
	return &Owner{cfg: cfg.withDefaults()}
}

// Phase reports where the owner is. An owner stuck in HoldingLock after its
// hold time has elapsed is self-deadlocked.
func (o *Owner) Phase() Phase {
	return Phase(o.phase.Load())
}

// Run executes Start → HoldingLock → Done on the calling goroutine. Signals
// are delivered between statements and during the hold. If one arrives while
// the lock is held, its handler blocks on the lock the caller owns and Run
// never returns.
func (o *Owner) Run() {
	irq := o.cfg.Interrupts

	irq.Safepoint()

	if o.cfg.MaskDuringHold {
		irq.Mask()
	}

	o.cfg.Lock.Lock()
	o.phase.Store(int32(HoldingLock))
	o.cfg.Log.WithField("hold", o.cfg.Hold).Info("lock acquired")
	o.cfg.Observer.Observe(Event{Kind: KindLocked})
	o.cfg.Observer.Observe(Event{Kind: KindInstructions, Signal: o.cfg.Signal, PID: o.cfg.PID})

	irq.Safepoint()
	irq.Sleep(o.cfg.Hold)

	o.cfg.Lock.Unlock()
	o.phase.Store(int32(Done))
	o.cfg.Log.Info("lock released")
	o.cfg.Observer.Observe(Event{Kind: KindUnlocked})

	if o.cfg.MaskDuringHold {
		irq.Unmask()
	}

	irq.Safepoint()
}

// NewHandler returns the interrupt handler: report the signal, then take and
// release the shared lock.
func NewHandler(l sync.Locker, obs Observer) interrupt.Handler {
	if obs == nil {
		obs = Observers{}
	}
	return func(sig os.Signal) {
		obs.Observe(Event{Kind: KindSignalReceived, Signal: sig})
		l.Lock() // blocks forever if the interrupted context holds l
		l.Unlock()
	}
}
