package voice

import (
	"context"
	"os"
	"strings"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
)

// Provider is a realtime speech-to-speech vendor adapter. One Provider value
// serves at most one session at a time.
type Provider interface {
	// Name returns the provider id (e.g. "gemini").
	Name() string

	// IsConfigured reports whether a usable API key is present.
	// Callers check this before StartSession.
	IsConfigured() bool

	// SupportedModels returns the catalogue models this vendor serves.
	SupportedModels() []catalog.ModelDefinition

	// SupportedVoices returns the catalogue voices this vendor offers.
	SupportedVoices() []catalog.Voice

	// FormatTools renders tool definitions in the vendor's schema.
	// No tool is dropped or renamed.
	FormatTools(defs []tools.Definition) any

	// StartSession connects, sends the session configuration and returns once
	// the vendor acknowledges it, or with the transport/auth error.
	StartSession(ctx context.Context, cfg SessionConfig) error

	// EndSession closes the session. It is idempotent.
	EndSession() error

	// SendAudio streams microphone audio. It silently does nothing when no
	// session is open.
	SendAudio(frame audio.Frame)

	// SendToolResponse answers a tool call. It logs a warning and does nothing
	// when no session is open.
	SendToolResponse(resp tools.Response)

	// Status returns the current session status.
	Status() Status

	// Metrics returns a snapshot of the session metrics.
	Metrics() SessionMetrics

	// Subscribe registers fn for the given event types (all when none given).
	Subscribe(fn Handler, types ...EventType) func()

	// Capabilities returns the capability flags of the session model.
	Capabilities() catalog.ModelCapabilities
}

// ResponseTrigger is implemented by vendors that need an explicit request
// for the model to continue after tool responses are submitted.
type ResponseTrigger interface {
	RequestResponse() error
}

// SessionConfig describes one session request. Build it with NewSessionConfig;
// it is not modified after construction.
type SessionConfig struct {
	// ModelKey is the catalogue key, Model the vendor's model id.
	ModelKey string
	Model    string

	Voice        string
	SystemPrompt string
	Tools        []tools.Definition
	VAD          catalog.VADConfig

	InputSampleRate  int
	OutputSampleRate int

	Capabilities catalog.ModelCapabilities

	// Extensions carries vendor-specific options.
	Extensions map[string]any
}

// NewSessionConfig builds a SessionConfig for model. Slices and maps are copied.
func NewSessionConfig(model catalog.ModelDefinition, voice, systemPrompt string, defs []tools.Definition, vad catalog.VADConfig, ext map[string]any) SessionConfig {
	cfg := SessionConfig{
		ModelKey:         model.Key,
		Model:            model.VendorID,
		Voice:            voice,
		SystemPrompt:     systemPrompt,
		Tools:            append([]tools.Definition(nil), defs...),
		VAD:              vad,
		InputSampleRate:  model.InputSampleRate,
		OutputSampleRate: model.OutputSampleRate,
		Capabilities:     model.Capabilities,
	}
	if len(ext) > 0 {
		cfg.Extensions = make(map[string]any, len(ext))
		for k, v := range ext {
			cfg.Extensions[k] = v
		}
	}
	return cfg
}

// Extension returns a string extension value.
func (c SessionConfig) Extension(key string) string {
	v, _ := c.Extensions[key].(string)
	return v
}

// IsUsableKey reports whether key looks like a real credential rather than
// an empty value or a template placeholder.
func IsUsableKey(key string) bool {
	k := strings.TrimSpace(key)
	if len(k) < 8 {
		return false
	}
	if strings.HasPrefix(k, "${") || strings.HasPrefix(k, "<") {
		return false
	}
	lower := strings.ToLower(k)
	for _, p := range []string{"your-api-key", "your_api_key", "changeme", "placeholder", "xxxxxxxx"} {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// LookupKey returns the first non-empty value among the environment variables.
func LookupKey(envs ...string) string {
	for _, name := range envs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Credentials holds vendor API keys by provider id.
type Credentials map[catalog.ProviderID]string

// CredentialsFromEnv reads each catalogue provider's key environment variables.
func CredentialsFromEnv(c *catalog.Catalog) Credentials {
	creds := make(Credentials)
	for _, p := range c.Providers() {
		if key := LookupKey(p.APIKeyEnv...); key != "" {
			creds[p.ID] = key
		}
	}
	return creds
}

// Configured reports whether a usable key exists for id.
func (c Credentials) Configured(id catalog.ProviderID) bool {
	return IsUsableKey(c[id])
}
