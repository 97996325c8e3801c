// Package observability holds the Prometheus instruments of the voice agent.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	FallbackAttempts *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	AudioChunks      *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ResponseLatency  prometheus.Histogram
}

// NewMetrics registers the instruments on a fresh registry together with
// the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active realtime voice sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		FallbackAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_attempts_total",
			Help:      "Session start attempts by model and outcome.",
		}, []string{"model", "outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		AudioChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Audio chunks by direction.",
		}, []string{"direction"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Dashboard WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ResponseLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_latency_ms",
			Help:      "Latency from end of user speech to first response in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
	}
}

// Registry returns the registry the instruments live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionEvent counts a session lifecycle event.
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// SetActive records whether a session is open.
func (m *Metrics) SetActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.ActiveSessions.Set(1)
	} else {
		m.ActiveSessions.Set(0)
	}
}

// StartAttempt records one model start attempt.
func (m *Metrics) StartAttempt(model string, err error) {
	if m == nil {
		return
	}
	m.FallbackAttempts.WithLabelValues(model, outcome(err)).Inc()
}

// ToolCall records one routed tool call.
func (m *Metrics) ToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

// ProviderError records an error event from a provider. Vendor codes are
// used when the error carries one.
func (m *Metrics) ProviderError(provider string, err error) {
	if m == nil {
		return
	}
	code := "unknown"
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) && coded.ErrorCode() != "" {
		code = coded.ErrorCode()
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

// AudioChunk counts a chunk in direction "in" or "out".
func (m *Metrics) AudioChunk(direction string) {
	if m == nil {
		return
	}
	m.AudioChunks.WithLabelValues(direction).Inc()
}

// WSMessage counts a dashboard WebSocket message.
func (m *Metrics) WSMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

// ObserveResponseLatency records one response latency.
func (m *Metrics) ObserveResponseLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ResponseLatency.Observe(float64(d.Milliseconds()))
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
