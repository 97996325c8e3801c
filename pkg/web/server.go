// Package web serves the agent's control surface: a JSON API over the
// orchestrator, a Prometheus endpoint, a WebSocket event feed and a
// WebSocket audio bridge for browser microphones and speakers.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/internal/observability"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/orchestrator"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// DefaultInputSampleRate is the rate browsers are expected to send on /ws/audio.
const DefaultInputSampleRate = 16000

// Agent is the orchestrator surface the server drives.
type Agent interface {
	StartWithModel(ctx context.Context, key string) error
	Stop() error
	Restart(ctx context.Context) error
	SendAudio(frame audio.Frame)
	UpdateConfig(ctx context.Context, patch catalog.SettingsPatch) (catalog.Settings, error)

	Settings() catalog.Settings
	Status() voice.Status
	ActiveModel() (catalog.ModelDefinition, bool)
	SessionID() string
	Metrics() voice.SessionMetrics
	PlayerStats() orchestrator.PlayerStats
	Catalog() *catalog.Catalog

	Tools() []tools.Definition
	HasTool(name string) bool
	ExecuteTool(ctx context.Context, name string, args map[string]any) tools.Result

	Subscribe(fn voice.Handler, types ...voice.EventType) func()
}

var _ Agent = (*orchestrator.Orchestrator)(nil)

// Options configures a Server.
type Options struct {
	// AllowOrigins is the CORS allow list. Defaults to "*".
	AllowOrigins string

	// StaticDir, when set, is served at /.
	StaticDir string

	// InputSampleRate is the rate of PCM16 received on /ws/audio.
	InputSampleRate int

	// OutputSampleRate is announced to /ws/audio clients; zero omits it.
	OutputSampleRate int

	// AudioHub carries /ws/audio traffic. Pass the hub behind a HubSink so
	// assistant audio reaches the same clients. Created when nil.
	AudioHub *hub.Hub

	// StartTimeout bounds a session start requested over HTTP.
	StartTimeout time.Duration

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP/WebSocket control surface.
type Server struct {
	app    *fiber.App
	agent  Agent
	logger *slog.Logger

	events *hub.Hub
	audio  *hub.Hub

	inputRate    int
	outputRate   int
	startTimeout time.Duration

	unsubscribe func()
	hubsOnce    sync.Once
}

// NewServer builds the routes for agent.
func NewServer(agent Agent, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}
	if opts.InputSampleRate <= 0 {
		opts.InputSampleRate = DefaultInputSampleRate
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = time.Minute
	}
	if opts.AudioHub == nil {
		opts.AudioHub = hub.New("audio", opts.Logger, hub.WithMetrics(opts.Metrics))
	}

	s := &Server{
		agent:        agent,
		logger:       opts.Logger.With("component", "web.server"),
		events:       hub.New("events", opts.Logger, hub.WithMetrics(opts.Metrics)),
		audio:        opts.AudioHub,
		inputRate:    opts.InputSampleRate,
		outputRate:   opts.OutputSampleRate,
		startTimeout: opts.StartTimeout,
	}
	s.audio.OnMessage(s.handleAudioIn)
	s.unsubscribe = agent.Subscribe(s.forwardEvent)

	app := fiber.New(fiber.Config{
		AppName:               "voiceagent",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: "GET,POST,PATCH,OPTIONS",
	}))

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/models", s.handleModels)
	api.Get("/voices/:provider", s.handleVoices)
	api.Get("/vad-presets", s.handleVADPresets)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handlePatchConfig)
	api.Post("/session/start", s.handleSessionStart)
	api.Post("/session/stop", s.handleSessionStop)
	api.Post("/session/restart", s.handleSessionRestart)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// EventHub returns the hub behind /ws/events.
func (s *Server) EventHub() *hub.Hub {
	return s.events
}

// AudioHub returns the hub behind /ws/audio.
func (s *Server) AudioHub() *hub.Hub {
	return s.audio
}

// runHubs starts both hubs once; they stop with ctx.
func (s *Server) runHubs(ctx context.Context) {
	s.hubsOnce.Do(func() {
		go s.events.Run(ctx)
		go s.audio.Run(ctx)
	})
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.runHubs(ctx)
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}
}

// Shutdown stops forwarding events and closes the listener.
func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return s.app.Shutdown()
}

// forwardEvent publishes orchestrator events to /ws/events clients.
// Audio travels on /ws/audio instead.
func (s *Server) forwardEvent(e voice.Event) {
	if e.Type == voice.EventAudio || s.events.ClientCount() == 0 {
		return
	}
	if err := s.events.BroadcastJSON(e); err != nil {
		s.logger.Warn("event encode failed", "type", e.Type, "error", err)
	}
}

// handleAudioIn forwards browser microphone audio to the session.
func (s *Server) handleAudioIn(_ *hub.Client, msg hub.Message) {
	if msg.Type != hub.BinaryMessage || len(msg.Data) < 2 {
		return
	}
	s.agent.SendAudio(audio.Chunk{
		Samples:    audio.BytesToPCM16(msg.Data),
		SampleRate: s.inputRate,
	})
}
