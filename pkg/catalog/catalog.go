// Package catalog is the static reference data for the voice agent: the
// models, voices and providers it can talk to, voice-activity-detection
// presets, and the default fallback chain. It also defines the
// user-configurable Settings layer and the Store that persists it.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// Lookup errors.
var (
	ErrUnknownModel     = errors.New("catalog: unknown model")
	ErrUnknownProvider  = errors.New("catalog: unknown provider")
	ErrUnknownVoice     = errors.New("catalog: unknown voice")
	ErrUnknownVADPreset = errors.New("catalog: unknown VAD preset")
)

// ProviderID identifies a realtime vendor.
type ProviderID string

// Supported providers.
const (
	ProviderGemini ProviderID = "gemini"
	ProviderOpenAI ProviderID = "openai"
)

// ModelStatus is the release status of a model.
type ModelStatus string

// Model statuses.
const (
	StatusStable     ModelStatus = "stable"
	StatusPreview    ModelStatus = "preview"
	StatusDeprecated ModelStatus = "deprecated"
	StatusFuture     ModelStatus = "future"
)

// ModelCapabilities are feature flags of a model.
type ModelCapabilities struct {
	Realtime     bool `json:"realtime"`
	VideoInput   bool `json:"video_input"`
	ToolCalling  bool `json:"tool_calling"`
	Interruption bool `json:"interruption"`
	NativeAudio  bool `json:"native_audio"`
}

// ModelDefinition describes one selectable model.
type ModelDefinition struct {
	// Key is the stable identifier used in settings and fallback chains.
	Key string `json:"key"`

	Provider ProviderID `json:"provider"`

	// VendorID is the model identifier sent on the wire.
	VendorID string `json:"vendor_id"`

	Name         string            `json:"name"`
	Capabilities ModelCapabilities `json:"capabilities"`

	InputSampleRate  int `json:"input_sample_rate"`
	OutputSampleRate int `json:"output_sample_rate"`

	TypicalLatencyMs int `json:"typical_latency_ms"`
	BestLatencyMs    int `json:"best_latency_ms"`

	Status          ModelStatus `json:"status"`
	DeprecationDate string      `json:"deprecation_date,omitempty"`
}

// Voice is a prebuilt vendor voice.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
}

// ProviderSettings are per-vendor connection parameters.
type ProviderSettings struct {
	ID   ProviderID `json:"id"`
	Name string     `json:"name"`

	// URL is the realtime WebSocket endpoint.
	URL string `json:"url"`

	// APIKeyEnv lists the environment variables checked for the API key, in order.
	APIKeyEnv []string `json:"api_key_env"`

	DefaultModel string `json:"default_model"`
	DefaultVoice string `json:"default_voice"`

	InputSampleRate  int `json:"input_sample_rate"`
	OutputSampleRate int `json:"output_sample_rate"`
}

// VADConfig tunes vendor-side voice activity detection.
type VADConfig struct {
	// StartSensitivity and EndSensitivity are "high" or "low" (Gemini).
	StartSensitivity string `json:"start_sensitivity"`
	EndSensitivity   string `json:"end_sensitivity"`

	// Threshold is the activation level in [0, 1] (OpenAI).
	Threshold float64 `json:"threshold"`

	PrefixPaddingMs   int `json:"prefix_padding_ms"`
	SilenceDurationMs int `json:"silence_duration_ms"`
}

// Catalog is an immutable view of the reference data.
type Catalog struct {
	models     map[string]ModelDefinition
	modelOrder []string
	providers  map[ProviderID]ProviderSettings
	voices     map[ProviderID][]Voice
	vadPresets map[string]VADConfig

	defaultModel  string
	fallbackChain []string
}

// Model returns the definition for key.
func (c *Catalog) Model(key string) (ModelDefinition, error) {
	m, ok := c.models[key]
	if !ok {
		return ModelDefinition{}, fmt.Errorf("%w: %q", ErrUnknownModel, key)
	}
	return m, nil
}

// Models returns every model in catalogue order.
func (c *Catalog) Models() []ModelDefinition {
	out := make([]ModelDefinition, 0, len(c.modelOrder))
	for _, key := range c.modelOrder {
		out = append(out, c.models[key])
	}
	return out
}

// ModelsFor returns the models served by provider, in catalogue order.
func (c *Catalog) ModelsFor(provider ProviderID) []ModelDefinition {
	var out []ModelDefinition
	for _, key := range c.modelOrder {
		if m := c.models[key]; m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// Provider returns the connection settings for id.
func (c *Catalog) Provider(id ProviderID) (ProviderSettings, error) {
	p, ok := c.providers[id]
	if !ok {
		return ProviderSettings{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// Providers returns all providers sorted by id.
func (c *Catalog) Providers() []ProviderSettings {
	out := make([]ProviderSettings, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Voices returns the prebuilt voices of provider.
func (c *Catalog) Voices(provider ProviderID) []Voice {
	return append([]Voice(nil), c.voices[provider]...)
}

// HasVoice reports whether provider offers the voice id.
func (c *Catalog) HasVoice(provider ProviderID, id string) bool {
	for _, v := range c.voices[provider] {
		if v.ID == id {
			return true
		}
	}
	return false
}

// ResolveVoice returns voice if the model's provider offers it, otherwise the
// provider default. Fallback across vendors relies on this.
func (c *Catalog) ResolveVoice(model ModelDefinition, voice string) string {
	if voice != "" && c.HasVoice(model.Provider, voice) {
		return voice
	}
	return c.providers[model.Provider].DefaultVoice
}

// VADPreset returns a named preset.
func (c *Catalog) VADPreset(name string) (VADConfig, error) {
	v, ok := c.vadPresets[name]
	if !ok {
		return VADConfig{}, fmt.Errorf("%w: %q", ErrUnknownVADPreset, name)
	}
	return v, nil
}

// VADPresets returns all presets keyed by name.
func (c *Catalog) VADPresets() map[string]VADConfig {
	out := make(map[string]VADConfig, len(c.vadPresets))
	for k, v := range c.vadPresets {
		out[k] = v
	}
	return out
}

// DefaultModel returns the key of the default model.
func (c *Catalog) DefaultModel() string { return c.defaultModel }

// FallbackChain returns the statically configured fallback order.
func (c *Catalog) FallbackChain() []string {
	return append([]string(nil), c.fallbackChain...)
}
