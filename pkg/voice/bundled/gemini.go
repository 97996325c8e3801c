package bundled

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// Gemini implements voice.Provider using Google's Gemini Live API.
// Gemini handles VAD, ASR, reasoning and TTS in a single stream; it takes
// 16 kHz PCM16 in and produces 24 kHz PCM16 out.
type Gemini struct {
	*base

	// responding is set once assistant output of the current turn arrives
	// and cleared by turnComplete or interrupted.
	responding atomic.Bool
}

// NewGemini creates a Gemini Live adapter. The key is read from
// GEMINI_API_KEY or GOOGLE_API_KEY when opts.APIKey is empty.
func NewGemini(opts Options) *Gemini {
	g := &Gemini{base: newBase(catalog.ProviderGemini, opts)}
	g.dispatch = g.handleMessage
	return g
}

// FormatTools implements voice.Provider.
func (g *Gemini) FormatTools(defs []tools.Definition) any {
	return tools.GeminiDeclarations(defs)
}

// StartSession implements voice.Provider.
func (g *Gemini) StartSession(ctx context.Context, cfg voice.SessionConfig) error {
	u, err := url.Parse(g.opts.BaseURL)
	if err != nil {
		return fmt.Errorf("gemini: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", g.opts.APIKey)
	u.RawQuery = q.Encode()

	g.responding.Store(false)
	return g.start(ctx, cfg, dialTarget{url: u.String()}, g.setupMessage(cfg))
}

// SendAudio implements voice.Provider.
func (g *Gemini) SendAudio(frame audio.Frame) {
	g.sendAudio(frame, func(data string, rate int) any {
		return geminiRealtimeInputMessage{
			RealtimeInput: geminiRealtimeInput{
				MediaChunks: []geminiBlob{{
					MimeType: "audio/pcm;rate=" + strconv.Itoa(rate),
					Data:     data,
				}},
			},
		}
	})
}

// SendToolResponse implements voice.Provider.
func (g *Gemini) SendToolResponse(resp tools.Response) {
	g.sendToolResponse(resp, geminiToolResponseMessage{
		ToolResponse: geminiToolResponse{
			FunctionResponses: []geminiFunctionResponse{{
				ID:       resp.ID,
				Name:     resp.Name,
				Response: resp.Payload(),
			}},
		},
	})
}

// setupMessage builds the first message of the session.
func (g *Gemini) setupMessage(cfg voice.SessionConfig) geminiSetupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := geminiSetup{
		Model: model,
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: cfg.Voice},
				},
			},
		},
		RealtimeInputConfig: &geminiRealtimeInputConfig{
			AutomaticActivityDetection: geminiActivityDetection{
				StartOfSpeechSensitivity: startSensitivity(cfg.VAD.StartSensitivity),
				EndOfSpeechSensitivity:   endSensitivity(cfg.VAD.EndSensitivity),
				PrefixPaddingMs:          cfg.VAD.PrefixPaddingMs,
				SilenceDurationMs:        cfg.VAD.SilenceDurationMs,
			},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.Voice == "" {
		setup.GenerationConfig.SpeechConfig = nil
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: cfg.SystemPrompt}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Tools = []*genai.Tool{{FunctionDeclarations: tools.GeminiDeclarations(cfg.Tools)}}
	}
	return geminiSetupMessage{Setup: setup}
}

func startSensitivity(s string) genai.StartSensitivity {
	switch strings.ToLower(s) {
	case "high":
		return genai.StartSensitivityHigh
	case "low":
		return genai.StartSensitivityLow
	}
	return ""
}

func endSensitivity(s string) genai.EndSensitivity {
	switch strings.ToLower(s) {
	case "high":
		return genai.EndSensitivityHigh
	case "low":
		return genai.EndSensitivityLow
	}
	return ""
}

// handleMessage processes a single Gemini Live message.
func (g *Gemini) handleMessage(sock *socket, data []byte) {
	var msg geminiServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		g.invalid(err)
		return
	}

	switch {
	case msg.SetupComplete != nil:
		g.Logger().Debug("setup complete")
		g.ready(sock)
	case msg.ServerContent != nil:
		g.handleServerContent(msg.ServerContent)
	case msg.ToolCall != nil:
		for _, fc := range msg.ToolCall.FunctionCalls {
			g.emitToolCall(fc.ID, fc.Name, fc.Args)
		}
	case msg.ToolCallCancellation != nil:
		ids := strings.Join(msg.ToolCallCancellation.IDs, ",")
		g.Logger().Info("tool calls cancelled", "ids", ids)
		g.Emit(voice.Log("info", "tool calls cancelled: "+ids))
	case msg.GoAway != nil:
		g.Logger().Warn("server requested disconnect", "time_left", msg.GoAway.TimeLeft)
		g.Emit(voice.Log("warn", "server closing session in "+msg.GoAway.TimeLeft))
	default:
		g.Logger().Debug("unhandled message", "bytes", len(data))
	}
}

// handleServerContent processes audio, text and turn signals.
func (g *Gemini) handleServerContent(content *geminiServerContent) {
	if content.Interrupted {
		g.responding.Store(false)
		g.SetStatus(voice.StatusListening)
		g.Emit(voice.Event{Type: voice.EventInterrupted})
		return
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		// Input transcription trails the user's speech. Until the model
		// answers, the latest fragment is the reference point for response
		// latency; fragments arriving mid-response leave the window closed.
		if !g.responding.Load() {
			g.MarkSpeechEnd()
		}
		g.Emit(voice.Transcript(voice.RoleUser, content.InputTranscription.Text, content.InputTranscription.Finished))
	}

	if content.ModelTurn != nil {
		if len(content.ModelTurn.Parts) > 0 {
			g.responding.Store(true)
		}
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "audio/") {
				g.emitAudio(part.InlineData.Data, mimeRate(part.InlineData.MimeType))
			}
			if part.Text != "" {
				g.emitText(part.Text, false)
			}
		}
	}

	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		g.responding.Store(true)
		g.Emit(voice.Transcript(voice.RoleAssistant, content.OutputTranscription.Text, content.OutputTranscription.Finished))
	}

	if content.TurnComplete {
		g.responding.Store(false)
		g.turnComplete()
		m := g.Metrics()
		g.Logger().Debug("turn complete", "latency", m.FormatLatency(g.Collector().AverageLatency()))
	}
}

// mimeRate extracts the rate parameter of "audio/pcm;rate=24000".
func mimeRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && k == "rate" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}

// Wire messages. Only the fields this adapter uses are declared.

type geminiSetupMessage struct {
	Setup geminiSetup `json:"setup"`
}

type geminiSetup struct {
	Model                    string                     `json:"model"`
	GenerationConfig         geminiGenerationConfig     `json:"generationConfig"`
	SystemInstruction        *geminiContent             `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool              `json:"tools,omitempty"`
	RealtimeInputConfig      *geminiRealtimeInputConfig `json:"realtimeInputConfig,omitempty"`
	InputAudioTranscription  *struct{}                  `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}                  `json:"outputAudioTranscription,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string            `json:"responseModalities"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiRealtimeInputConfig struct {
	AutomaticActivityDetection geminiActivityDetection `json:"automaticActivityDetection"`
}

type geminiActivityDetection struct {
	StartOfSpeechSensitivity genai.StartSensitivity `json:"startOfSpeechSensitivity,omitempty"`
	EndOfSpeechSensitivity   genai.EndSensitivity   `json:"endOfSpeechSensitivity,omitempty"`
	PrefixPaddingMs          int                    `json:"prefixPaddingMs,omitempty"`
	SilenceDurationMs        int                    `json:"silenceDurationMs,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRealtimeInputMessage struct {
	RealtimeInput geminiRealtimeInput `json:"realtimeInput"`
}

type geminiRealtimeInput struct {
	MediaChunks []geminiBlob `json:"mediaChunks"`
}

type geminiToolResponseMessage struct {
	ToolResponse geminiToolResponse `json:"toolResponse"`
}

type geminiToolResponse struct {
	FunctionResponses []geminiFunctionResponse `json:"functionResponses"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiServerMessage struct {
	SetupComplete        *json.RawMessage            `json:"setupComplete"`
	ServerContent        *geminiServerContent        `json:"serverContent"`
	ToolCall             *geminiToolCall             `json:"toolCall"`
	ToolCallCancellation *geminiToolCallCancellation `json:"toolCallCancellation"`
	GoAway               *geminiGoAway               `json:"goAway"`
}

type geminiServerContent struct {
	ModelTurn           *geminiContent       `json:"modelTurn"`
	TurnComplete        bool                 `json:"turnComplete"`
	Interrupted         bool                 `json:"interrupted"`
	InputTranscription  *geminiTranscription `json:"inputTranscription"`
	OutputTranscription *geminiTranscription `json:"outputTranscription"`
}

type geminiTranscription struct {
	Text     string `json:"text"`
	Finished bool   `json:"finished"`
}

type geminiToolCall struct {
	FunctionCalls []geminiFunctionCall `json:"functionCalls"`
}

type geminiFunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiToolCallCancellation struct {
	IDs []string `json:"ids"`
}

type geminiGoAway struct {
	TimeLeft string `json:"timeLeft"`
}

// Ensure Gemini implements voice.Provider at compile time.
var _ voice.Provider = (*Gemini)(nil)
