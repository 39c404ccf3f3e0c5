// Package shutdown provides the single exit switch propagated through
// every long-running component (QUIC servers, the fetch/sigverify stages,
// the relayer event loop): an external exit flag, polled cooperatively,
// that every component answers to uniformly instead of each owning its own
// cancellation primitive.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
)

// State mirrors the small, ordered state set a cooperative shutdown flag
// needs: nothing in this package ever reverses Triggered -> Running.
type State uint32

const (
	// Running indicates normal operation; components should keep working.
	Running State = 0
	// Triggered indicates shutdown has been requested; components should
	// wind down and exit their loops without starting new work.
	Triggered State = 1
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Triggered:
		return "Triggered"
	default:
		return "Unknown"
	}
}

// ErrShutdown is returned by operations that observe a triggered Switch
// where an error return is expected (e.g. a blocking channel send that
// should unblock on shutdown).
var ErrShutdown = errors.New("shutdown: switch triggered")

// Switch is a one-shot, broadcast exit flag. The zero value is not usable;
// construct with New. Safe for concurrent use.
type Switch struct {
	state atomic.Uint32
	done  chan struct{}
	once  sync.Once
}

// New returns a Switch in the Running state.
func New() *Switch {
	return &Switch{done: make(chan struct{})}
}

// Trigger moves the Switch to Triggered and closes the channel returned by
// Done. Safe to call more than once or concurrently; only the first call
// has effect.
func (s *Switch) Trigger() {
	s.once.Do(func() {
		s.state.Store(uint32(Triggered))
		close(s.done)
	})
}

// Done returns a channel that is closed once Trigger has been called.
// Suitable for use directly in a select alongside a component's other
// event sources.
func (s *Switch) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Switch) State() State {
	return State(s.state.Load())
}

// Triggered reports whether Trigger has been called.
func (s *Switch) Triggered() bool {
	return s.State() == Triggered
}
