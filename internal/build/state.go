package build

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle of one build.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrInvalidTransition is returned for any move the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StatePending: {StateRunning},
	StateRunning: {StateSucceeded, StateFailed},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// machine guards the state of one build.
type machine struct {
	mu    sync.Mutex
	state State
	// onChange runs under the lock after each successful transition.
	onChange func(from, to State)
}

func newMachine(onChange func(from, to State)) *machine {
	return &machine{state: StatePending, onChange: onChange}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	from := m.state
	m.state = next
	if m.onChange != nil {
		m.onChange(from, next)
	}
	return nil
}

// start moves Pending to Running once; later calls are no-ops.
func (m *machine) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePending {
		return
	}
	m.state = StateRunning
	if m.onChange != nil {
		m.onChange(StatePending, StateRunning)
	}
}
