package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type codedErr struct{ code string }

func (e codedErr) Error() string     { return "coded " + e.code }
func (e codedErr) ErrorCode() string { return e.code }

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.SessionEvent("started")
	m.SessionEvent("started")
	m.StartAttempt("gemini-2.0-flash-live", errors.New("boom"))
	m.StartAttempt("gpt-4o-realtime", nil)
	m.ToolCall("navigate", true)
	m.ToolCall("navigate", false)
	m.AudioChunk("in")
	m.WSMessage("out", "transcript")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"started", testutil.ToFloat64(m.SessionEvents.WithLabelValues("started")), 2},
		{"failed attempt", testutil.ToFloat64(m.FallbackAttempts.WithLabelValues("gemini-2.0-flash-live", "failure")), 1},
		{"ok attempt", testutil.ToFloat64(m.FallbackAttempts.WithLabelValues("gpt-4o-realtime", "success")), 1},
		{"tool ok", testutil.ToFloat64(m.ToolCalls.WithLabelValues("navigate", "success")), 1},
		{"tool err", testutil.ToFloat64(m.ToolCalls.WithLabelValues("navigate", "error")), 1},
		{"audio in", testutil.ToFloat64(m.AudioChunks.WithLabelValues("in")), 1},
		{"ws out", testutil.ToFloat64(m.WSMessages.WithLabelValues("out", "transcript")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMetrics_ProviderErrorCode(t *testing.T) {
	m := NewMetrics("test")

	m.ProviderError("openai", codedErr{code: "rate_limit_exceeded"})
	m.ProviderError("openai", errors.New("plain"))

	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("openai", "rate_limit_exceeded")); got != 1 {
		t.Errorf("coded errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("openai", "unknown")); got != 1 {
		t.Errorf("uncoded errors = %v, want 1", got)
	}
}

func TestMetrics_ActiveAndLatency(t *testing.T) {
	m := NewMetrics("test")

	m.SetActive(true)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	m.SetActive(false)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}

	m.ObserveResponseLatency(350 * time.Millisecond)
	if n := testutil.CollectAndCount(m.ResponseLatency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.SessionEvent("started")
	m.SetActive(true)
	m.StartAttempt("x", nil)
	m.ToolCall("x", true)
	m.ProviderError("x", errors.New("e"))
	m.AudioChunk("in")
	m.WSMessage("in", "x")
	m.ObserveResponseLatency(time.Second)
	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("voiceagent")
	m.SessionEvent("started")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `voiceagent_session_events_total{event="started"} 1`) {
		t.Errorf("exposition missing session counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go collector")
	}
}
