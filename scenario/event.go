package scenario

import (
	"os"
	"sync"

	"github.com/samber/lo"
)

// Kind identifies what happened.
type Kind int

const (
	KindLocked Kind = iota
	KindInstructions
	KindUnlocked
	KindSignalReceived
)

func (k Kind) String() string {
	switch k {
	case KindLocked:
		return "locked mutex"
	case KindInstructions:
		return "instructions"
	case KindUnlocked:
		return "unlocked mutex"
	case KindSignalReceived:
		return "received signal"
	default:
		return "unknown"
	}
}

// Event is one observable step of the scenario.
type Event struct {
	Kind   Kind
	Signal os.Signal // set on KindInstructions and KindSignalReceived
	PID    int       // set on KindInstructions
}

// Observer receives events synchronously, on the goroutine that produced them.
// For the interrupt handler that is the interrupted goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out in order. Nil entries are skipped.
type Observers []Observer

func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}

// Recorder keeps every event it observes. It is safe to read while the
// scenario is still running (or hung).
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	return kinds(r.Events())
}

func kinds(events []Event) []Kind {
	return lo.Map(events, func(e Event, _ int) Kind { return e.Kind })
}
