package bundled

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// OpenAI implements voice.Provider using OpenAI's Realtime API: GPT-4o with
// server VAD, transcription and TTS over one WebSocket, 24 kHz PCM16 both ways.
type OpenAI struct {
	*base
}

// NewOpenAI creates an OpenAI Realtime adapter. The key is read from
// OPENAI_API_KEY when opts.APIKey is empty.
func NewOpenAI(opts Options) *OpenAI {
	o := &OpenAI{base: newBase(catalog.ProviderOpenAI, opts)}
	o.dispatch = o.handleMessage
	return o
}

// FormatTools implements voice.Provider.
func (o *OpenAI) FormatTools(defs []tools.Definition) any {
	return tools.OpenAITools(defs)
}

// StartSession implements voice.Provider.
func (o *OpenAI) StartSession(ctx context.Context, cfg voice.SessionConfig) error {
	u, err := url.Parse(o.opts.BaseURL)
	if err != nil {
		return fmt.Errorf("openai: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("OpenAI-Beta", "realtime=v1")

	target := dialTarget{
		url:    u.String(),
		header: header,
		subprotocols: []string{
			"realtime",
			"openai-insecure-api-key." + o.opts.APIKey,
			"openai-beta.realtime-v1",
		},
	}
	return o.start(ctx, cfg, target, o.sessionUpdate(cfg))
}

// SendAudio implements voice.Provider.
func (o *OpenAI) SendAudio(frame audio.Frame) {
	o.sendAudio(frame, func(data string, _ int) any {
		return openAIAudioAppend{Type: "input_audio_buffer.append", Audio: data}
	})
}

// SendToolResponse implements voice.Provider. The result is added as a
// function_call_output item; RequestResponse asks the model to continue.
func (o *OpenAI) SendToolResponse(resp tools.Response) {
	output, err := json.Marshal(resp.Payload())
	if err != nil {
		output = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	o.sendToolResponse(resp, openAIItemCreate{
		Type: "conversation.item.create",
		Item: openAIItem{
			Type:   "function_call_output",
			CallID: resp.ID,
			Output: string(output),
		},
	})
}

// RequestResponse implements voice.ResponseTrigger.
func (o *OpenAI) RequestResponse() error {
	if !o.Status().Active() {
		return voice.ErrNotConnected
	}
	return o.send(openAIClientEvent{Type: "response.create"})
}

func (o *OpenAI) sessionUpdate(cfg voice.SessionConfig) openAISessionUpdate {
	session := openAISession{
		Modalities:        []string{"text", "audio"},
		Instructions:      cfg.SystemPrompt,
		Voice:             cfg.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &openAITranscription{
			Model: "whisper-1",
		},
		TurnDetection: &openAITurnDetection{
			Type:              "server_vad",
			Threshold:         cfg.VAD.Threshold,
			PrefixPaddingMs:   cfg.VAD.PrefixPaddingMs,
			SilenceDurationMs: cfg.VAD.SilenceDurationMs,
		},
	}
	if len(cfg.Tools) > 0 {
		session.Tools = tools.OpenAITools(cfg.Tools)
		session.ToolChoice = "auto"
	}
	return openAISessionUpdate{Type: "session.update", Session: session}
}

// handleMessage processes a single Realtime server event.
func (o *OpenAI) handleMessage(sock *socket, data []byte) {
	var ev openAIServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		o.invalid(err)
		return
	}

	switch ev.Type {
	case "session.created", "session.updated":
		o.Logger().Debug("session acknowledged", "event", ev.Type)
		o.ready(sock)

	case "input_audio_buffer.speech_started":
		wasSpeaking := o.Status() == voice.StatusSpeaking
		o.SetStatus(voice.StatusListening)
		o.Emit(voice.Event{Type: voice.EventSpeechStarted})
		if wasSpeaking {
			// Server VAD cancels the in-flight response on barge-in.
			o.Emit(voice.Event{Type: voice.EventInterrupted})
		}

	case "input_audio_buffer.speech_stopped":
		o.MarkSpeechEnd()
		o.Emit(voice.Event{Type: voice.EventSpeechStopped})

	case "conversation.item.input_audio_transcription.completed":
		o.Emit(voice.Transcript(voice.RoleUser, ev.Transcript, true))

	case "response.created":
		o.Logger().Debug("response started")

	case "response.audio.delta", "response.output_audio.delta":
		o.emitAudio(ev.Delta, o.config().OutputSampleRate)

	case "response.audio_transcript.delta", "response.output_audio_transcript.delta", "response.text.delta":
		o.emitText(ev.Delta, false)

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		o.Emit(voice.Transcript(voice.RoleAssistant, ev.Transcript, true))

	case "response.text.done":
		o.Emit(voice.Response(ev.Text, true))

	case "response.function_call_arguments.done":
		args := map[string]any{}
		if ev.Arguments != "" {
			if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
				o.invalid(fmt.Errorf("tool %s arguments: %w", ev.Name, err))
				args = map[string]any{}
			}
		}
		o.emitToolCall(ev.CallID, ev.Name, args)

	case "response.done":
		o.turnComplete()
		m := o.Metrics()
		o.Logger().Debug("response done", "latency", m.FormatLatency(o.Collector().AverageLatency()))

	case "error":
		apiErr := voice.NewAPIError("", "", "unknown error")
		if ev.Error != nil {
			apiErr = voice.NewAPIError(ev.Error.Code, ev.Error.Type, ev.Error.Message)
		}
		if sock.markReady(apiErr) {
			// Rejected configuration; StartSession reports it.
			return
		}
		o.Logger().Warn("vendor error", "code", apiErr.Code, "message", apiErr.Message)
		o.EmitError(apiErr)

	default:
		o.Logger().Debug("unhandled event", "type", ev.Type)
	}
}

// Wire messages. Only the fields this adapter uses are declared.

type openAIClientEvent struct {
	Type string `json:"type"`
}

type openAISessionUpdate struct {
	Type    string        `json:"type"`
	Session openAISession `json:"session"`
}

type openAISession struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *openAITranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *openAITurnDetection `json:"turn_detection,omitempty"`
	Tools                   []tools.OpenAITool   `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
}

type openAITranscription struct {
	Model string `json:"model"`
}

type openAITurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type openAIAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type openAIItemCreate struct {
	Type string     `json:"type"`
	Item openAIItem `json:"item"`
}

type openAIItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type openAIServerEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta"`
	Text       string       `json:"text"`
	Transcript string       `json:"transcript"`
	Name       string       `json:"name"`
	CallID     string       `json:"call_id"`
	Arguments  string       `json:"arguments"`
	Error      *openAIError `json:"error"`
}

type openAIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ensure OpenAI implements voice.Provider and voice.ResponseTrigger at compile time.
var (
	_ voice.Provider        = (*OpenAI)(nil)
	_ voice.ResponseTrigger = (*OpenAI)(nil)
)
