package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestrator.
var (
	// ErrAllProvidersFailed indicates the primary model and every fallback failed to start.
	ErrAllProvidersFailed = errors.New("orchestrator: all providers failed")

	// ErrProviderNotConfigured indicates the selected vendor has no usable API key.
	ErrProviderNotConfigured = errors.New("orchestrator: provider not configured")

	// ErrSessionStalled indicates the vendor stopped answering mid-session.
	ErrSessionStalled = errors.New("orchestrator: session stalled")

	// ErrAlreadyRunning indicates Start was called while a session is open.
	ErrAlreadyRunning = errors.New("orchestrator: session already running")

	// ErrClosed indicates the orchestrator was closed.
	ErrClosed = errors.New("orchestrator: closed")
)

// Attempt is one failed session start.
type Attempt struct {
	Model string
	Err   error
}

// FallbackError aggregates the failures of a start that exhausted the
// fallback chain. errors.Is(err, ErrAllProvidersFailed) holds for it.
type FallbackError struct {
	Attempts []Attempt
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	switch len(e.Attempts) {
	case 0:
		return "orchestrator: all providers failed: no attempts recorded"
	case 1:
		a := e.Attempts[0]
		return fmt.Sprintf("orchestrator: all providers failed: %s: %v", a.Model, a.Err)
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("orchestrator: all %d providers failed, last error (%s): %v", len(e.Attempts), last.Model, last.Err)
}

// Is matches ErrAllProvidersFailed.
func (e *FallbackError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns the last error in the chain.
func (e *FallbackError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Models returns the attempted model keys in order.
func (e *FallbackError) Models() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Model
	}
	return out
}
