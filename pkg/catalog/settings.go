package catalog

import (
	"errors"
	"fmt"
)

// DefaultSystemPrompt is used when the user has not set one.
const DefaultSystemPrompt = "You are a helpful voice assistant embedded in a business application. " +
	"Keep answers short and conversational. Use the available tools to look up context, " +
	"perform actions and navigate when the user asks."

// Settings is the user-configurable layer over the catalogue.
type Settings struct {
	Model        string `json:"model"`
	Voice        string `json:"voice,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	VADPreset    string `json:"vad_preset"`

	FallbackEnabled bool `json:"fallback_enabled"`

	// FallbackChain overrides the catalogue chain when non-empty.
	FallbackChain []string `json:"fallback_chain,omitempty"`
}

// SettingsPatch is a partial update; nil fields are left untouched.
type SettingsPatch struct {
	Model           *string   `json:"model,omitempty"`
	Voice           *string   `json:"voice,omitempty"`
	SystemPrompt    *string   `json:"system_prompt,omitempty"`
	VADPreset       *string   `json:"vad_preset,omitempty"`
	FallbackEnabled *bool     `json:"fallback_enabled,omitempty"`
	FallbackChain   *[]string `json:"fallback_chain,omitempty"`
}

// DefaultSettings returns the settings used before anything is persisted.
func (c *Catalog) DefaultSettings() Settings {
	return Settings{
		Model:           c.defaultModel,
		SystemPrompt:    DefaultSystemPrompt,
		VADPreset:       VADDefault,
		FallbackEnabled: true,
	}
}

// Apply returns a copy of s with patch applied.
func (s Settings) Apply(patch SettingsPatch) Settings {
	if patch.Model != nil {
		s.Model = *patch.Model
	}
	if patch.Voice != nil {
		s.Voice = *patch.Voice
	}
	if patch.SystemPrompt != nil {
		s.SystemPrompt = *patch.SystemPrompt
	}
	if patch.VADPreset != nil {
		s.VADPreset = *patch.VADPreset
	}
	if patch.FallbackEnabled != nil {
		s.FallbackEnabled = *patch.FallbackEnabled
	}
	if patch.FallbackChain != nil {
		s.FallbackChain = append([]string(nil), (*patch.FallbackChain)...)
	} else {
		s.FallbackChain = append([]string(nil), s.FallbackChain...)
	}
	return s
}

// RequiresRestart reports whether moving from prev to s changes a field the
// vendors only accept at session setup.
func (s Settings) RequiresRestart(prev Settings) bool {
	return s.Model != prev.Model ||
		s.Voice != prev.Voice ||
		s.SystemPrompt != prev.SystemPrompt ||
		s.VADPreset != prev.VADPreset
}

// Validate checks that every key in s resolves against the catalogue.
func (c *Catalog) Validate(s Settings) error {
	var errs []error

	model, err := c.Model(s.Model)
	if err != nil {
		errs = append(errs, err)
	} else if s.Voice != "" && !c.HasVoice(model.Provider, s.Voice) {
		errs = append(errs, fmt.Errorf("%w: %q for provider %s", ErrUnknownVoice, s.Voice, model.Provider))
	}

	if s.VADPreset != "" {
		if _, err := c.VADPreset(s.VADPreset); err != nil {
			errs = append(errs, err)
		}
	}

	for _, key := range s.FallbackChain {
		if _, err := c.Model(key); err != nil {
			errs = append(errs, fmt.Errorf("fallback chain: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Chain returns the fallback order in effect for s.
func (c *Catalog) Chain(s Settings) []string {
	if len(s.FallbackChain) > 0 {
		return append([]string(nil), s.FallbackChain...)
	}
	return c.FallbackChain()
}
