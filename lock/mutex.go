// Package lock provides the mutual-exclusion lock shared by the lock owner and
// the interrupt handler.
//
// The lock is non-reentrant: there is no owner tracking, so a second Lock from
// the execution context that already holds it blocks that context forever.
// That property is the whole point of the package; do not add a recursive
// variant or a TryLock.
package lock

import (
	"sync"
	"sync/atomic"

	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// State is the observable state of a Mutex.
type State int32

const (
	Unlocked State = iota
	Locked
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Mutex is a non-reentrant lock with a name and an observable state.
//
// It is constructed explicitly and handed to every party that needs it; it is
// never a package-level variable. A Mutex must not be copied after first use.
type Mutex struct {
	name  string
	inner sync.Locker
	state atomic.Int32
	log   *logrus.Entry
}

// New returns an unlocked Mutex backed by sync.Mutex.
func New(name string, log *logrus.Entry) *Mutex {
	return newMutex(name, &sync.Mutex{}, log)
}

// NewTraced returns an unlocked Mutex backed by go-deadlock's instrumented
// mutex. It blocks exactly like New's; in addition go-deadlock reports
// recursive locking and over-long waits through the options installed by
// ConfigureTracing. The report never unblocks anything.
func NewTraced(name string, log *logrus.Entry) *Mutex {
	return newMutex(name, &deadlock.Mutex{}, log)
}

func newMutex(name string, inner sync.Locker, log *logrus.Entry) *Mutex {
	return &Mutex{
		name:  name,
		inner: inner,
		log:   logging.OrDiscard(log).WithField("lock", name),
	}
}

// Lock blocks until the mutex is unlocked and then takes it. Calling Lock
// again from the holder never returns.
func (m *Mutex) Lock() {
	m.log.Debug("acquiring")
	m.inner.Lock()
	m.state.Store(int32(Locked))
	m.log.Debug("acquired")
}

// Unlock releases the mutex and wakes one waiter, if any. The caller must hold
// the mutex.
func (m *Mutex) Unlock() {
	m.state.Store(int32(Unlocked))
	m.inner.Unlock()
	m.log.Debug("released")
}

// State reports whether the mutex is currently held. It is for observation
// only and must not be used to decide whether to call Lock.
func (m *Mutex) State() State {
	return State(m.state.Load())
}

// Name returns the name the mutex was created with.
func (m *Mutex) Name() string {
	return m.name
}
