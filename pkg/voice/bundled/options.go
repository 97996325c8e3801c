// Package bundled provides the realtime speech-to-speech vendor adapters:
// Gemini Live and OpenAI Realtime. Each adapter owns one WebSocket per
// session and translates the vendor protocol into voice events.
package bundled

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// Options configures an adapter.
type Options struct {
	// APIKey overrides the environment lookup.
	APIKey string

	// BaseURL overrides the vendor WebSocket endpoint (used by tests).
	BaseURL string

	// Catalog supplies model and voice metadata. Defaults to catalog.Default().
	Catalog *catalog.Catalog

	Logger *slog.Logger

	// SetupTimeout bounds the wait for the vendor to acknowledge the session.
	SetupTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration
}

// DefaultOptions returns options with production timeouts.
func DefaultOptions() Options {
	return Options{
		SetupTimeout:     15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults(provider catalog.ProviderID) Options {
	d := DefaultOptions()
	if o.SetupTimeout <= 0 {
		o.SetupTimeout = d.SetupTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.APIKey == "" {
		if p, err := o.Catalog.Provider(provider); err == nil {
			o.APIKey = voice.LookupKey(p.APIKeyEnv...)
		}
	}
	if o.BaseURL == "" {
		if p, err := o.Catalog.Provider(provider); err == nil {
			o.BaseURL = p.URL
		}
	}
	return o
}

// New builds the adapter for provider.
func New(provider catalog.ProviderID, opts Options) (voice.Provider, error) {
	switch provider {
	case catalog.ProviderGemini:
		return NewGemini(opts), nil
	case catalog.ProviderOpenAI:
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownProvider, provider)
	}
}

// Factory returns a provider factory that applies opts to every adapter,
// taking the key for each vendor from creds when present.
func Factory(opts Options, creds voice.Credentials) func(catalog.ProviderID) (voice.Provider, error) {
	return func(id catalog.ProviderID) (voice.Provider, error) {
		o := opts
		if key := creds[id]; key != "" {
			o.APIKey = key
		}
		return New(id, o)
	}
}
