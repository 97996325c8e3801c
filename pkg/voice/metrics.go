package voice

import (
	"sync"
	"time"
)

// SessionMetrics are the counters of one session. They are reset by every
// StartSession.
type SessionMetrics struct {
	SessionStart   time.Time     `json:"session_start"`
	ConnectionTime time.Duration `json:"connection_time"`

	// LastResponseLatency runs from the last end of user speech to the first
	// response fragment that followed it.
	LastResponseLatency time.Duration `json:"last_response_latency"`

	AudioChunksSent     int `json:"audio_chunks_sent"`
	AudioChunksReceived int `json:"audio_chunks_received"`
	ToolCalls           int `json:"tool_calls"`
	Turns               int `json:"turns"`

	Errors []ErrorRecord `json:"errors,omitempty"`
}

// ErrorRecord is one entry of the session error log.
type ErrorRecord struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

const (
	maxErrorLog       = 50
	maxLatencyHistory = 100
)

// MetricsCollector collects SessionMetrics. It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current SessionMetrics

	connectStart time.Time
	speechEnd    time.Time
	awaiting     bool

	history []time.Duration
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]time.Duration, 0, maxLatencyHistory),
	}
}

// StartSession resets all counters and starts the connection clock.
func (m *MetricsCollector) StartSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.current = SessionMetrics{SessionStart: now}
	m.connectStart = now
	m.speechEnd = time.Time{}
	m.awaiting = false
	m.history = m.history[:0]
}

// MarkConnected records the handshake duration.
func (m *MetricsCollector) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connectStart.IsZero() {
		m.current.ConnectionTime = time.Since(m.connectStart)
	}
}

// MarkSpeechEnd records when the user stopped speaking.
// This is the reference point for the next latency measurement.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speechEnd = time.Now()
	m.awaiting = true
}

// MarkResponseStart closes an open latency measurement. It reports the
// latency and true only for the first response after a speech end.
func (m *MetricsCollector) MarkResponseStart() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.awaiting {
		return 0, false
	}
	m.awaiting = false

	latency := time.Since(m.speechEnd)
	m.current.LastResponseLatency = latency
	m.history = append(m.history, latency)
	if len(m.history) > maxLatencyHistory {
		m.history = m.history[1:]
	}
	return latency, true
}

// IncrementAudioSent counts an outbound audio frame.
func (m *MetricsCollector) IncrementAudioSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksSent++
}

// IncrementAudioReceived counts an inbound audio fragment.
func (m *MetricsCollector) IncrementAudioReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksReceived++
}

// IncrementToolCalls counts a tool call request.
func (m *MetricsCollector) IncrementToolCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ToolCalls++
}

// IncrementTurns counts a completed assistant turn.
func (m *MetricsCollector) IncrementTurns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Turns++
}

// RecordError appends to the error log, keeping the most recent entries.
func (m *MetricsCollector) RecordError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Errors = append(m.current.Errors, ErrorRecord{Time: time.Now(), Message: err.Error()})
	if len(m.current.Errors) > maxErrorLog {
		m.current.Errors = m.current.Errors[1:]
	}
}

// Snapshot returns a copy of the current metrics.
func (m *MetricsCollector) Snapshot() SessionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	s.Errors = append([]ErrorRecord(nil), m.current.Errors...)
	return s
}

// AverageLatency returns the mean response latency of the session.
func (m *MetricsCollector) AverageLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.history {
		total += d
	}
	return total / time.Duration(len(m.history))
}

// FormatLatency renders the last and average latency for logs.
func (s SessionMetrics) FormatLatency(avg time.Duration) string {
	return formatDuration(s.LastResponseLatency) + " last | " + formatDuration(avg) + " avg"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
