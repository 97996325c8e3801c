package voice

import (
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
)

// EventType discriminates Event.
type EventType string

// Provider events.
const (
	EventStatusChange  EventType = "status_change"
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
	EventSetupComplete EventType = "setup_complete"
	EventSpeechStarted EventType = "speech_started"
	EventSpeechStopped EventType = "speech_stopped"
	EventInterrupted   EventType = "interrupted"
	EventTurnComplete  EventType = "turn_complete"
	EventTranscript    EventType = "transcript"
	EventResponse      EventType = "response"
	EventAudio         EventType = "audio"
	EventToolCall      EventType = "tool_call"
	EventLatency       EventType = "latency"
	EventError         EventType = "error"
	EventLog           EventType = "log"
)

// Orchestrator events.
const (
	EventToolResult        EventType = "tool_result"
	EventFallbackAttempt   EventType = "fallback_attempt"
	EventFallbackExhausted EventType = "fallback_exhausted"
	EventSessionStarted    EventType = "session_started"
	EventSessionStopped    EventType = "session_stopped"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Event is the single message type flowing out of providers and the
// orchestrator. Which fields are set depends on Type.
type Event struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`

	// status_change
	From Status `json:"from,omitempty"`
	To   Status `json:"to,omitempty"`

	// transcript, response, log
	Role  string `json:"role,omitempty"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Level string `json:"level,omitempty"`

	// audio
	Audio *audio.Chunk `json:"-"`

	// tool_call, tool_result
	ToolCall     *tools.Call     `json:"tool_call,omitempty"`
	ToolResponse *tools.Response `json:"tool_response,omitempty"`

	// latency
	Latency time.Duration `json:"latency,omitempty"`

	// error, disconnected
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	// fallback_attempt
	Attempt int `json:"attempt,omitempty"`
}

// StatusChange builds a status_change event.
func StatusChange(from, to Status) Event {
	return Event{Type: EventStatusChange, From: from, To: to}
}

// Transcript builds a transcript event for the given role.
func Transcript(role, text string, final bool) Event {
	return Event{Type: EventTranscript, Role: role, Text: text, Final: final}
}

// Response builds an assistant text fragment event.
func Response(text string, final bool) Event {
	return Event{Type: EventResponse, Role: RoleAssistant, Text: text, Final: final}
}

// AudioOut builds an audio event.
func AudioOut(samples []int16, sampleRate int) Event {
	return Event{Type: EventAudio, Audio: &audio.Chunk{Samples: samples, SampleRate: sampleRate}}
}

// ToolCallEvent builds a tool_call event.
func ToolCallEvent(call tools.Call) Event {
	return Event{Type: EventToolCall, ToolCall: &call}
}

// ErrorEvent builds an error event.
func ErrorEvent(err error) Event {
	e := Event{Type: EventError, Err: err}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Log builds a log event.
func Log(level, text string) Event {
	return Event{Type: EventLog, Level: level, Text: text}
}

// Handler consumes events.
type Handler func(Event)

type subscription struct {
	id    int
	fn    Handler
	types map[EventType]struct{}
}

func (s subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a synchronous fan-out. Handlers run on the emitting goroutine, in
// subscription order, so events from one source arrive in emission order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// On registers fn for the given types (all types when none are given) and
// returns an id for Off.
func (b *Bus) On(fn Handler, types ...EventType) int {
	sub := subscription{fn: fn}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	return sub.id
}

// Off removes a subscription. Unknown ids are ignored.
func (b *Bus) Off(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribe is On returning an unsubscribe func.
func (b *Bus) Subscribe(fn Handler, types ...EventType) func() {
	id := b.On(fn, types...)
	return func() { b.Off(id) }
}

// Emit delivers e to every matching subscriber.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(e.Type) {
			s.fn(e)
		}
	}
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
