package orchestrator

import (
	"sync"
	"time"
)

// watchdog fires when a session owes output and none arrives in time.
// Arm starts (or restarts) the countdown; any vendor output disarms it.
type watchdog struct {
	timeout time.Duration
	onStall func(*session)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// newWatchdog returns a watchdog; a non-positive timeout disables it.
func newWatchdog(timeout time.Duration, onStall func(*session)) *watchdog {
	return &watchdog{timeout: timeout, onStall: onStall}
}

func (w *watchdog) Arm(sess *session) {
	if w.timeout <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		live := gen == w.gen
		if live {
			w.timer = nil
		}
		w.mu.Unlock()

		if live {
			w.onStall(sess)
		}
	})
}

func (w *watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}
