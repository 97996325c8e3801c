// Package orchestrator owns the single live voice session of the agent. It
// selects a model, starts the vendor session (walking the fallback chain when
// the primary fails), routes tool calls, plays assistant audio in order and
// republishes provider events to the host application.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagent/internal/observability"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
	"github.com/teslashibe/go-voiceagent/pkg/voice/bundled"
)

// Defaults.
const (
	DefaultWatchdogTimeout = 20 * time.Second
	DefaultToolTimeout     = 30 * time.Second

	// restartTimeout bounds a restart triggered by the watchdog.
	restartTimeout = time.Minute
)

// ProviderFactory builds a fresh adapter for a vendor.
type ProviderFactory func(id catalog.ProviderID) (voice.Provider, error)

// Options configures an Orchestrator. Zero fields get defaults, except
// WatchdogTimeout where zero disables the watchdog.
type Options struct {
	// Catalog defaults to catalog.Default().
	Catalog *catalog.Catalog

	// Store persists settings. Defaults to an in-memory store.
	Store catalog.Store

	// Registry holds the host's tools. The built-in tools are always added.
	Registry *tools.Registry

	// Factory defaults to the bundled Gemini/OpenAI adapters with keys from
	// the environment.
	Factory ProviderFactory

	// Sink plays assistant audio. Nil drops it.
	Sink audioio.Sink

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// WatchdogTimeout is how long to wait for vendor output after the user
	// stops speaking or a tool response is sent.
	WatchdogTimeout time.Duration

	// ToolTimeout bounds one tool execution.
	ToolTimeout time.Duration

	// Extensions are passed to every session as vendor-specific options.
	Extensions map[string]any
}

// DefaultOptions returns options with the production timeouts.
func DefaultOptions() Options {
	return Options{
		WatchdogTimeout: DefaultWatchdogTimeout,
		ToolTimeout:     DefaultToolTimeout,
	}
}

// session is one started vendor session.
type session struct {
	id       string
	provider voice.Provider
	model    catalog.ModelDefinition
	started  time.Time

	// ctx is cancelled when the session ends; tool calls run under it.
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()
	ended       atomic.Bool
}

// Orchestrator drives one voice session at a time.
type Orchestrator struct {
	catalog  *catalog.Catalog
	store    catalog.Store
	registry *tools.Registry
	factory  ProviderFactory
	logger   *slog.Logger
	metrics  *observability.Metrics

	bus      *voice.Bus
	player   *Player
	watchdog *watchdog

	toolTimeout time.Duration
	extensions  map[string]any

	// lifecycle serializes Start, Stop, Restart, UpdateConfig and Close.
	// Provider event handlers never take it.
	lifecycle sync.Mutex

	mu              sync.Mutex
	settings        catalog.Settings
	sess            *session
	closed          bool
	contextProvider tools.ContextProvider
	actions         ActionExecutor
	navigation      NavigationHandler
}

// New creates an orchestrator and loads the persisted settings.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = catalog.NewMemoryStore(opts.Catalog.DefaultSettings())
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry(opts.Logger)
	}
	if opts.Factory == nil {
		opts.Factory = bundled.Factory(
			bundled.Options{Catalog: opts.Catalog, Logger: opts.Logger},
			voice.CredentialsFromEnv(opts.Catalog),
		)
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}

	logger := opts.Logger.With("component", "orchestrator")

	settings, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := opts.Catalog.Validate(settings); err != nil {
		logger.Warn("persisted settings do not match the catalogue", "error", err)
	}

	o := &Orchestrator{
		catalog:     opts.Catalog,
		store:       opts.Store,
		registry:    opts.Registry,
		factory:     opts.Factory,
		logger:      logger,
		metrics:     opts.Metrics,
		bus:         voice.NewBus(),
		player:      NewPlayer(opts.Sink, opts.Logger),
		toolTimeout: opts.ToolTimeout,
		extensions:  opts.Extensions,
		settings:    settings,
	}
	o.watchdog = newWatchdog(opts.WatchdogTimeout, o.stalled)
	o.player.Start(context.Background())

	return o, nil
}

// Start opens a session on the configured model, falling back through the
// chain when enabled.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.StartWithModel(ctx, "")
}

// StartWithModel is Start with an explicit primary model key. An empty key
// means the configured model.
func (o *Orchestrator) StartWithModel(ctx context.Context, key string) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.start(ctx, key)
}

func (o *Orchestrator) start(ctx context.Context, key string) error {
	o.mu.Lock()
	closed, active, settings := o.closed, o.sess != nil, o.settings
	o.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if active {
		return ErrAlreadyRunning
	}
	if key == "" {
		key = settings.Model
	}

	model, err := o.catalog.Model(key)
	if err != nil {
		return err
	}

	err = o.attempt(ctx, model, settings)
	if err == nil {
		return nil
	}
	// Configuration errors on the primary are fatal; only transport
	// failures move on to the chain.
	if errors.Is(err, catalog.ErrUnknownProvider) ||
		errors.Is(err, ErrProviderNotConfigured) ||
		!settings.FallbackEnabled {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return o.fallback(ctx, settings, Attempt{Model: key, Err: err})
}

// attempt starts one session on model.
func (o *Orchestrator) attempt(ctx context.Context, model catalog.ModelDefinition, settings catalog.Settings) error {
	p, err := o.factory(model.Provider)
	if err != nil {
		return err
	}
	if !p.IsConfigured() {
		err := fmt.Errorf("%w: %s", ErrProviderNotConfigured, model.Provider)
		o.metrics.StartAttempt(model.Key, err)
		o.logger.Warn("provider not configured", "provider", model.Provider, "model", model.Key)
		return err
	}

	cfg := o.sessionConfig(model, settings)

	sess := &session{id: uuid.NewString(), provider: p, model: model}
	sess.ctx, sess.cancel = context.WithCancel(context.Background())
	sess.unsubscribe = p.Subscribe(o.route(sess))

	o.logger.Info("starting session",
		"session_id", sess.id,
		"provider", p.Name(),
		"model", model.Key,
		"voice", cfg.Voice,
		"tools", len(cfg.Tools),
	)

	if err := p.StartSession(ctx, cfg); err != nil {
		sess.ended.Store(true)
		sess.cancel()
		sess.unsubscribe()
		o.metrics.StartAttempt(model.Key, err)
		o.logger.Warn("session start failed", "model", model.Key, "error", err)
		return err
	}

	sess.started = time.Now()
	o.mu.Lock()
	o.sess = sess
	o.mu.Unlock()

	o.metrics.StartAttempt(model.Key, nil)
	o.metrics.SetActive(true)
	o.metrics.SessionEvent("started")
	o.logger.Info("session started", "session_id", sess.id, "model", model.Key)
	o.bus.Emit(voice.Event{
		Type:     voice.EventSessionStarted,
		Provider: p.Name(),
		Model:    model.Key,
		Text:     sess.id,
	})
	return nil
}

func (o *Orchestrator) sessionConfig(model catalog.ModelDefinition, settings catalog.Settings) voice.SessionConfig {
	vad, err := o.catalog.VADPreset(settings.VADPreset)
	if err != nil {
		vad, _ = o.catalog.VADPreset(catalog.VADDefault)
	}
	defs := append(tools.Builtins(), o.registry.List()...)
	return voice.NewSessionConfig(
		model,
		o.catalog.ResolveVoice(model, settings.Voice),
		settings.SystemPrompt,
		defs,
		vad,
		o.extensions,
	)
}

// fallback walks the chain after the primary failed.
func (o *Orchestrator) fallback(ctx context.Context, settings catalog.Settings, primary Attempt) error {
	chain := o.catalog.Chain(settings)
	attempts := []Attempt{primary}

	for i, key := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := voice.Event{Type: voice.EventFallbackAttempt, Model: key, Attempt: i + 1}
		model, err := o.catalog.Model(key)
		if err == nil {
			ev.Provider = string(model.Provider)
		}
		o.logger.Info("trying fallback model", "model", key, "attempt", i+1, "of", len(chain))
		o.bus.Emit(ev)

		if err == nil {
			err = o.attempt(ctx, model, settings)
		}
		if err == nil {
			o.logger.Info("fallback model started", "model", key, "attempt", i+1)
			return nil
		}
		attempts = append(attempts, Attempt{Model: key, Err: err})
	}

	ferr := &FallbackError{Attempts: attempts}
	o.logger.Error("fallback chain exhausted", "attempts", len(attempts), "error", ferr)
	o.metrics.SessionEvent("fallback_exhausted")
	o.bus.Emit(voice.Event{Type: voice.EventFallbackExhausted, Err: ferr, Error: ferr.Error()})
	return ferr
}

// Stop ends the active session and discards queued audio. It is idempotent.
func (o *Orchestrator) Stop() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.stop("stopped")
}

func (o *Orchestrator) stop(reason string) error {
	o.mu.Lock()
	sess := o.sess
	o.sess = nil
	o.mu.Unlock()

	o.watchdog.Disarm()
	if sess == nil {
		o.player.Clear()
		return nil
	}

	sess.ended.Store(true)
	sess.cancel()
	o.player.Clear()

	err := sess.provider.EndSession()
	sess.unsubscribe()

	o.metrics.SetActive(false)
	o.metrics.SessionEvent("stopped")
	o.logger.Info("session stopped",
		"session_id", sess.id,
		"reason", reason,
		"duration", time.Since(sess.started).Round(time.Millisecond),
	)
	o.bus.Emit(voice.Event{
		Type:     voice.EventSessionStopped,
		Provider: sess.provider.Name(),
		Model:    sess.model.Key,
		Reason:   reason,
	})
	return err
}

// Restart stops and restarts an active session with the current settings.
// It does nothing when no session is active.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.restart(ctx, "restart")
}

func (o *Orchestrator) restart(ctx context.Context, reason string) error {
	if o.current() == nil {
		return nil
	}
	if err := o.stop(reason); err != nil {
		o.logger.Warn("end session failed during restart", "error", err)
	}
	return o.start(ctx, "")
}

// UpdateConfig validates and persists a settings patch. When a session is
// active and the patch changes a field that vendors only accept at setup,
// the session is restarted.
func (o *Orchestrator) UpdateConfig(ctx context.Context, patch catalog.SettingsPatch) (catalog.Settings, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	prev := o.settings
	o.mu.Unlock()

	next := prev.Apply(patch)
	if err := o.catalog.Validate(next); err != nil {
		return prev, err
	}
	if err := o.store.Save(next); err != nil {
		return prev, fmt.Errorf("save settings: %w", err)
	}

	o.mu.Lock()
	o.settings = next
	o.mu.Unlock()

	o.logger.Info("settings updated", "model", next.Model, "voice", next.Voice, "vad", next.VADPreset)

	if next.RequiresRestart(prev) {
		if err := o.restart(ctx, "reconfigure"); err != nil {
			return next, err
		}
	}
	return next, nil
}

// Close stops the session and the player. The orchestrator cannot be
// started again.
func (o *Orchestrator) Close() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	err := o.stop("closed")
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	return errors.Join(err, o.player.Close())
}

// SendAudio forwards microphone audio to the active session. It does nothing
// when no session is active.
func (o *Orchestrator) SendAudio(frame audio.Frame) {
	sess := o.current()
	if sess == nil {
		return
	}
	sess.provider.SendAudio(frame)
	o.metrics.AudioChunk("in")
}

// SetContextProvider injects the application context source used by
// get_context and by registry tools that require context.
func (o *Orchestrator) SetContextProvider(p tools.ContextProvider) {
	o.mu.Lock()
	o.contextProvider = p
	o.mu.Unlock()
	o.registry.SetContextProvider(p)
}

// SetActionExecutor injects the execute_action handler.
func (o *Orchestrator) SetActionExecutor(fn ActionExecutor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = fn
}

// SetNavigationHandler injects the navigate handler.
func (o *Orchestrator) SetNavigationHandler(fn NavigationHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.navigation = fn
}

// Settings returns a copy of the current settings.
func (o *Orchestrator) Settings() catalog.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings.Apply(catalog.SettingsPatch{})
}

// Status returns the status of the active session, or idle.
func (o *Orchestrator) Status() voice.Status {
	if sess := o.current(); sess != nil {
		return sess.provider.Status()
	}
	return voice.StatusIdle
}

// ActiveModel returns the model of the active session.
func (o *Orchestrator) ActiveModel() (catalog.ModelDefinition, bool) {
	if sess := o.current(); sess != nil {
		return sess.model, true
	}
	return catalog.ModelDefinition{}, false
}

// SessionID returns the id of the active session, or "".
func (o *Orchestrator) SessionID() string {
	if sess := o.current(); sess != nil {
		return sess.id
	}
	return ""
}

// Metrics returns the metrics of the active session.
func (o *Orchestrator) Metrics() voice.SessionMetrics {
	if sess := o.current(); sess != nil {
		return sess.provider.Metrics()
	}
	return voice.SessionMetrics{}
}

// PlayerStats returns playback counters.
func (o *Orchestrator) PlayerStats() PlayerStats {
	return o.player.Stats()
}

// Catalog returns the catalogue in use.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// Registry returns the tool registry.
func (o *Orchestrator) Registry() *tools.Registry { return o.registry }

// Tools returns every definition advertised to the model.
func (o *Orchestrator) Tools() []tools.Definition {
	return append(tools.Builtins(), o.registry.List()...)
}

// On registers fn for the given event types (all when none are given).
func (o *Orchestrator) On(fn voice.Handler, types ...voice.EventType) int {
	return o.bus.On(fn, types...)
}

// Off removes a subscription made with On.
func (o *Orchestrator) Off(id int) {
	o.bus.Off(id)
}

// Subscribe is On returning an unsubscribe func.
func (o *Orchestrator) Subscribe(fn voice.Handler, types ...voice.EventType) func() {
	return o.bus.Subscribe(fn, types...)
}

// Emit publishes an event to the orchestrator's subscribers.
func (o *Orchestrator) Emit(e voice.Event) {
	o.bus.Emit(e)
}

func (o *Orchestrator) current() *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}
