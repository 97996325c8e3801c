package voice

import (
	"log/slog"
)

// Core bundles the state every adapter shares: event bus, status machine,
// metrics and logger. Adapters embed a *Core to pick up Name, Status,
// Metrics and Subscribe.
type Core struct {
	name    string
	logger  *slog.Logger
	bus     *Bus
	state   *StateMachine
	metrics *MetricsCollector
}

// NewCore creates the shared state for the named provider.
func NewCore(name string, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{
		name:    name,
		logger:  logger.With("component", "voice."+name),
		bus:     NewBus(),
		metrics: NewMetricsCollector(),
	}
	c.state = NewStateMachine(func(from, to Status) {
		c.logger.Debug("status changed", "from", from, "to", to)
		c.Emit(StatusChange(from, to))
	})
	return c
}

// Name returns the provider name.
func (c *Core) Name() string { return c.name }

// Logger returns the component logger.
func (c *Core) Logger() *slog.Logger { return c.logger }

// Status returns the current status.
func (c *Core) Status() Status { return c.state.Status() }

// Metrics returns a snapshot of the session metrics.
func (c *Core) Metrics() SessionMetrics { return c.metrics.Snapshot() }

// Collector exposes the metrics collector to the adapter.
func (c *Core) Collector() *MetricsCollector { return c.metrics }

// Subscribe registers an event handler.
func (c *Core) Subscribe(fn Handler, types ...EventType) func() {
	return c.bus.Subscribe(fn, types...)
}

// Emit stamps e with the provider name and publishes it.
func (c *Core) Emit(e Event) {
	if e.Provider == "" {
		e.Provider = c.name
	}
	c.bus.Emit(e)
}

// EmitError records err in the session error log and publishes it.
func (c *Core) EmitError(err error) {
	c.metrics.RecordError(err)
	c.Emit(ErrorEvent(err))
}

// SetStatus moves the state machine to next. Disallowed moves are logged and
// ignored, leaving the status unchanged.
func (c *Core) SetStatus(next Status) bool {
	if err := c.state.Transition(next); err != nil {
		c.logger.Debug("status change rejected", "error", err)
		return false
	}
	return true
}

// MarkSpeechEnd starts a latency measurement.
func (c *Core) MarkSpeechEnd() {
	c.metrics.MarkSpeechEnd()
}

// MarkResponseStart closes an open latency measurement and emits a latency
// event when one was open.
func (c *Core) MarkResponseStart() {
	if latency, ok := c.metrics.MarkResponseStart(); ok {
		c.Emit(Event{Type: EventLatency, Latency: latency})
	}
}
