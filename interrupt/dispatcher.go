// Package interrupt delivers asynchronous signals onto a single execution
// context.
//
// A POSIX signal handler does not get a thread of its own: it runs on the
// stack of whichever thread it interrupted, and that thread does not resume
// until the handler returns. Go relays OS signals to a channel instead, so the
// Dispatcher restores the original model. Raise may be called from anywhere,
// but handlers only ever run inline on the goroutine that calls Safepoint or
// Sleep. If a handler blocks, the interrupted context blocks with it.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Handler is the code run when a registered signal is delivered.
type Handler func(sig os.Signal)

// Sentinel errors returned by the Dispatcher.
var (
	ErrAlreadyRegistered = errors.New("signal handler already registered")
	ErrNotRegistered     = errors.New("no handler registered for signal")
)

// Stats counts signals as they move through the Dispatcher.
type Stats struct {
	Raised    int64 // every successful Raise
	Coalesced int64 // raises folded into an already-pending signal
	Delivered int64 // handler invocations started
}

// Dispatcher holds the signal registrations and the pending set for one
// execution context.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[os.Signal]Handler
	pending  []os.Signal        // FIFO, at most one entry per signal
	running  map[os.Signal]bool // handlers currently executing
	masked   int
	stats    Stats

	// wake nudges a context parked in Sleep. One token is enough: the
	// sleeper re-reads the pending set each time it wakes.
	wake chan struct{}

	log *logrus.Entry
}

// New returns a Dispatcher with no registrations.
func New(log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[os.Signal]Handler),
		running:  make(map[os.Signal]bool),
		wake:     make(chan struct{}, 1),
		log:      logging.OrDiscard(log),
	}
}

// Register installs h for sig. A signal can be registered once; the
// registration is fixed from then on.
func (d *Dispatcher) Register(sig os.Signal, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.handlers[sig]; ok {
		return errors.WrapPrefix(ErrAlreadyRegistered, Name(sig), 0)
	}
	d.handlers[sig] = h
	d.log.WithField("signal", Name(sig)).Debug("handler registered")
	return nil
}

// Raise marks sig pending and wakes the execution context. It never runs the
// handler itself and never blocks. Raising a signal that is already pending
// has no further effect, as with standard POSIX signals.
func (d *Dispatcher) Raise(sig os.Signal) error {
	d.mu.Lock()
	if _, ok := d.handlers[sig]; !ok {
		d.mu.Unlock()
		return errors.WrapPrefix(ErrNotRegistered, Name(sig), 0)
	}

	d.stats.Raised++
	if lo.Contains(d.pending, sig) {
		d.stats.Coalesced++
		d.mu.Unlock()
		d.log.WithField("signal", Name(sig)).Debug("signal already pending")
		return nil
	}
	d.pending = append(d.pending, sig)
	d.mu.Unlock()

	d.log.WithField("signal", Name(sig)).Debug("signal raised")

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Safepoint runs the handler of every deliverable pending signal on the
// calling goroutine, in the order they were raised. A signal is not
// deliverable while delivery is masked or while its own handler is running.
func (d *Dispatcher) Safepoint() {
	for {
		sig, h, ok := d.next()
		if !ok {
			return
		}
		d.deliver(sig, h)
	}
}

func (d *Dispatcher) next() (os.Signal, Handler, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.masked > 0 {
		return nil, nil, false
	}
	for _, sig := range d.pending {
		if d.running[sig] {
			continue
		}
		d.pending = lo.Without(d.pending, sig)
		d.running[sig] = true
		d.stats.Delivered++
		return sig, d.handlers[sig], true
	}
	return nil, nil, false
}

func (d *Dispatcher) deliver(sig os.Signal, h Handler) {
	log := d.log.WithField("signal", Name(sig))
	log.Debug("running handler")

	defer func() {
		d.mu.Lock()
		delete(d.running, sig)
		d.mu.Unlock()
		log.Debug("handler returned")
	}()

	h(sig)
}

// Sleep parks the calling context for dur. Signals arriving meanwhile are
// handled inline, after which the remaining time is slept. A handler that
// never returns means Sleep never returns.
func (d *Dispatcher) Sleep(dur time.Duration) {
	deadline := time.Now().Add(dur)
	d.Safepoint()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}

		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return
		case <-d.wake:
			timer.Stop()
			d.Safepoint()
		}
	}
}

// Mask blocks delivery. Masks nest; signals raised while masked stay pending.
func (d *Dispatcher) Mask() {
	d.mu.Lock()
	d.masked++
	d.mu.Unlock()
}

// Unmask undoes one Mask. When the last mask is removed, pending signals are
// delivered on the calling goroutine before Unmask returns.
func (d *Dispatcher) Unmask() {
	d.mu.Lock()
	if d.masked > 0 {
		d.masked--
	}
	open := d.masked == 0
	d.mu.Unlock()

	if open {
		d.Safepoint()
	}
}

// Pending returns the signals raised but not yet delivered.
func (d *Dispatcher) Pending() []os.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]os.Signal(nil), d.pending...)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Notify relays the given OS signals into Raise until stop is called.
//
// stop returns only once every signal already received has been raised, so a
// Safepoint after stop delivers them. Signals arriving after stop get the
// default disposition again.
func (d *Dispatcher) Notify(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		// signal.Notify with no signals would relay every signal.
		return func() {}
	}

	ch := make(chan os.Signal, len(sigs)+1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	exited := make(chan struct{})

	relay := func(sig os.Signal) {
		if err := d.Raise(sig); err != nil {
			d.log.WithError(err).Warn("dropping OS signal")
		}
	}

	go func() {
		defer close(exited)
		for {
			select {
			case sig := <-ch:
				relay(sig)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
			<-exited

			for {
				select {
				case sig := <-ch:
					relay(sig)
				default:
					return
				}
			}
		})
	}
}
