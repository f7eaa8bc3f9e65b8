package fsm

import "sync"

// Machine guards a conversation state for one session. Transitions are
// applied from a single owning goroutine; the mutex protects concurrent
// readers of the state snapshot.
type Machine struct {
	mu    sync.RWMutex
	state State
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state snapshot.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Apply advances the machine by one event.
func (m *Machine) Apply(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.state, event)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

// Reset returns the machine to Idle. This models full re-initialization
// with a new session; it is the only exit from Closed.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
}
