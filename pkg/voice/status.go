package voice

import (
	"fmt"
	"sync"
)

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// transitions lists the allowed targets for each status, excluding idle and
// error which are reachable from everywhere.
var transitions = map[Status][]Status{
	StatusIdle:       {StatusConnecting},
	StatusConnecting: {StatusConnected},
	StatusConnected:  {StatusListening, StatusSpeaking},
	StatusListening:  {StatusSpeaking},
	StatusSpeaking:   {StatusListening},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	if next == StatusIdle || next == StatusError {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether s belongs to a live session.
func (s Status) Active() bool {
	switch s {
	case StatusConnected, StatusListening, StatusSpeaking:
		return true
	}
	return false
}

// StateMachine guards a Status and reports every change.
type StateMachine struct {
	mu       sync.Mutex
	status   Status
	onChange func(from, to Status)
}

// NewStateMachine starts in idle. onChange runs after each change, outside the lock.
func NewStateMachine(onChange func(from, to Status)) *StateMachine {
	return &StateMachine{status: StatusIdle, onChange: onChange}
}

// Status returns the current status.
func (m *StateMachine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transition moves to next. Moving to the current status is a no-op.
func (m *StateMachine) Transition(next Status) error {
	m.mu.Lock()
	from := m.status
	if from == next {
		m.mu.Unlock()
		return nil
	}
	if !from.CanTransition(next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.status = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, next)
	}
	return nil
}
