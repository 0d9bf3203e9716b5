package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// State describes where a capture session is in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateDraining  State = "draining"
	StateClosed    State = "closed"
)

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// Machine is a lightweight deterministic capture state machine.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New creates a state machine in the idle state.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Accepting reports whether audio blocks may be fed.
func (m *Machine) Accepting() bool {
	return m.State() == StateCapturing
}

// OnStart moves an idle session into capturing.
func (m *Machine) OnStart() error {
	return m.transition(StateCapturing, StateIdle)
}

// OnStop stops accepting audio; queued chunks are still delivered.
func (m *Machine) OnStop() error {
	return m.transition(StateDraining, StateCapturing)
}

// OnDrained marks the consumer finished.
func (m *Machine) OnDrained() error {
	return m.transition(StateClosed, StateDraining)
}

// Abort closes the session from any state. It reports whether the state changed.
func (m *Machine) Abort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return false
	}
	m.state = StateClosed
	return true
}

// Force sets state unconditionally.
func (m *Machine) Force(state State) error {
	switch state {
	case StateIdle, StateCapturing, StateDraining, StateClosed:
		m.mu.Lock()
		m.state = state
		m.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
}

func (m *Machine) transition(to State, from State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("%s -> %s: %w", m.state, to, ErrInvalidTransition)
	}
	m.state = to
	return nil
}
