package voice

import (
	"context"
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
)

// Mock is a scriptable Provider for tests.
type Mock struct {
	*Core

	mu sync.Mutex

	// Configured controls IsConfigured.
	Configured bool

	// Configurable behavior
	StartSessionFunc func(ctx context.Context, cfg SessionConfig) error
	EndSessionFunc   func() error

	// Captured calls for assertions
	Sessions        []SessionConfig
	AudioSent       [][]int16
	ToolResponses   []tools.Response
	ResponseTrigger int
	EndCalls        int

	// OutputSampleRate is used by SimulateAudio.
	OutputSampleRate int
}

// NewMock creates a configured mock named name.
func NewMock(name string) *Mock {
	return &Mock{
		Core:             NewCore(name, nil),
		Configured:       true,
		OutputSampleRate: 24000,
	}
}

// IsConfigured implements Provider.
func (m *Mock) IsConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Configured
}

// SupportedModels implements Provider.
func (m *Mock) SupportedModels() []catalog.ModelDefinition {
	return catalog.Default().ModelsFor(catalog.ProviderID(m.Name()))
}

// SupportedVoices implements Provider.
func (m *Mock) SupportedVoices() []catalog.Voice {
	return catalog.Default().Voices(catalog.ProviderID(m.Name()))
}

// FormatTools implements Provider using the generic JSON-Schema form.
func (m *Mock) FormatTools(defs []tools.Definition) any {
	return tools.JSONSchemaTools(defs)
}

// StartSession implements Provider.
func (m *Mock) StartSession(ctx context.Context, cfg SessionConfig) error {
	if m.Status() != StatusIdle {
		return ErrAlreadyStarted
	}

	m.mu.Lock()
	m.Sessions = append(m.Sessions, cfg)
	fn := m.StartSessionFunc
	m.mu.Unlock()

	m.Collector().StartSession()
	m.SetStatus(StatusConnecting)

	if fn != nil {
		if err := fn(ctx, cfg); err != nil {
			m.EmitError(err)
			m.SetStatus(StatusError)
			m.SetStatus(StatusIdle)
			return err
		}
	}

	m.Collector().MarkConnected()
	m.SetStatus(StatusConnected)
	m.Emit(Event{Type: EventConnected, Model: cfg.ModelKey})
	return nil
}

// EndSession implements Provider.
func (m *Mock) EndSession() error {
	m.mu.Lock()
	m.EndCalls++
	fn := m.EndSessionFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	if m.Status() != StatusIdle {
		m.SetStatus(StatusIdle)
		m.Emit(Event{Type: EventDisconnected, Code: 1000, Reason: "session ended"})
	}
	return nil
}

// SendAudio implements Provider.
func (m *Mock) SendAudio(frame audio.Frame) {
	if !m.Status().Active() {
		return
	}
	m.mu.Lock()
	m.AudioSent = append(m.AudioSent, frame.PCM16())
	m.mu.Unlock()
	m.Collector().IncrementAudioSent()
	if m.Status() == StatusConnected {
		m.SetStatus(StatusListening)
	}
}

// SendToolResponse implements Provider.
func (m *Mock) SendToolResponse(resp tools.Response) {
	if !m.Status().Active() {
		m.Logger().Warn("tool response dropped, session not open", "call_id", resp.ID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ToolResponses = append(m.ToolResponses, resp)
}

// RequestResponse implements ResponseTrigger.
func (m *Mock) RequestResponse() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseTrigger++
	return nil
}

// Capabilities implements Provider.
func (m *Mock) Capabilities() catalog.ModelCapabilities {
	return catalog.ModelCapabilities{Realtime: true, ToolCalling: true, Interruption: true}
}

// Simulation helpers

// SimulateToolCall emits a tool_call event.
func (m *Mock) SimulateToolCall(id, name string, args map[string]any) {
	m.Collector().IncrementToolCalls()
	m.Emit(ToolCallEvent(tools.Call{ID: id, Name: name, Arguments: args}))
}

// SimulateAudio emits an audio event at OutputSampleRate.
func (m *Mock) SimulateAudio(samples []int16) {
	m.MarkResponseStart()
	m.SetStatus(StatusSpeaking)
	m.Collector().IncrementAudioReceived()
	m.Emit(AudioOut(samples, m.OutputSampleRate))
}

// SimulateTranscript emits a transcript event.
func (m *Mock) SimulateTranscript(role, text string) {
	m.Emit(Transcript(role, text, true))
}

// SimulateResponse emits an assistant text fragment.
func (m *Mock) SimulateResponse(text string) {
	m.MarkResponseStart()
	m.Emit(Response(text, false))
}

// SimulateSpeechStopped emits speech_stopped and opens a latency measurement.
func (m *Mock) SimulateSpeechStopped() {
	m.MarkSpeechEnd()
	m.Emit(Event{Type: EventSpeechStopped})
}

// SimulateInterrupted emits a barge-in.
func (m *Mock) SimulateInterrupted() {
	m.SetStatus(StatusListening)
	m.Emit(Event{Type: EventInterrupted})
}

// SimulateTurnComplete ends an assistant turn.
func (m *Mock) SimulateTurnComplete() {
	m.Collector().IncrementTurns()
	m.SetStatus(StatusListening)
	m.Emit(Event{Type: EventTurnComplete})
}

// SimulateDisconnect emits a remote close.
func (m *Mock) SimulateDisconnect(code int, reason string) {
	m.SetStatus(StatusIdle)
	m.Emit(Event{Type: EventDisconnected, Code: code, Reason: reason})
}

// SimulateError emits an error event.
func (m *Mock) SimulateError(err error) {
	m.EmitError(err)
}

// Snapshot accessors guard the captured slices.

// AudioFrames returns the captured audio frames.
func (m *Mock) AudioFrames() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int16(nil), m.AudioSent...)
}

// Responses returns the captured tool responses.
func (m *Mock) Responses() []tools.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tools.Response(nil), m.ToolResponses...)
}

// Triggers returns how many times RequestResponse was called.
func (m *Mock) Triggers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ResponseTrigger
}

// SessionCount returns how many times StartSession was called.
func (m *Mock) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

var (
	_ Provider        = (*Mock)(nil)
	_ ResponseTrigger = (*Mock)(nil)
)
