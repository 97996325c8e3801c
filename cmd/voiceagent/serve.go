package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/observability"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/orchestrator"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
	"github.com/teslashibe/go-voiceagent/pkg/voice/bundled"
	"github.com/teslashibe/go-voiceagent/pkg/web"
)

var (
	serveListen    string
	serveAutostart bool
	serveMic       string
	serveStatic    string
	serveBrowser   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.Server.Listen = serveListen
		}
		if cmd.Flags().Changed("autostart") {
			cfg.Agent.Autostart = serveAutostart
		}
		if cmd.Flags().Changed("browser-audio") {
			cfg.Server.BrowserAudio = serveBrowser
		}
		if serveMic != "" {
			backend, err := audioio.ParseBackend(serveMic)
			if err != nil {
				return err
			}
			cfg.Mic.Backend = backend
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "start a session as soon as the server is up")
	serveCmd.Flags().StringVar(&serveMic, "mic", "", "microphone backend: auto, ffmpeg, mock, none")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "directory served at /")
	serveCmd.Flags().BoolVar(&serveBrowser, "browser-audio", false, "play assistant audio in /ws/audio clients")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cat := catalog.Default()
	metrics := observability.NewMetrics("voiceagent")
	audioHub := hub.New("audio", logger, hub.WithMetrics(metrics))

	var sink audioio.Sink
	if cfg.Server.BrowserAudio {
		sink = web.NewHubSink(audioHub, cfg.Speaker, logger)
	} else {
		s, err := audioio.NewSink(cfg.Speaker, logger)
		if err != nil {
			return fmt.Errorf("speaker: %w", err)
		}
		sink = s
	}

	registry := tools.NewRegistry(logger)
	registry.MustRegister(hostTools()...)

	agent, err := orchestrator.New(orchestrator.Options{
		Catalog:         cat,
		Store:           catalog.NewFileStore(cfg.Agent.SettingsPath, cat.DefaultSettings()),
		Registry:        registry,
		Factory:         providerFactory(cat),
		Sink:            sink,
		Logger:          logger,
		Metrics:         metrics,
		WatchdogTimeout: cfg.Agent.WatchdogTimeout,
		ToolTimeout:     cfg.Agent.ToolTimeout,
	})
	if err != nil {
		return err
	}
	defer agent.Close()

	srv := web.NewServer(agent, web.Options{
		AllowOrigins:     cfg.Server.AllowOrigins,
		StaticDir:        serveStatic,
		OutputSampleRate: sink.Config().SampleRate,
		AudioHub:         audioHub,
		Metrics:          metrics,
		Logger:           logger,
	})
	attachHost(agent, srv)

	if cfg.Mic.Backend != audioio.BackendNone {
		src, err := newMic(cfg.Mic)
		if err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
		defer src.Close()
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
		go func() {
			err := audioio.Pump(ctx, src, func(c audio.Chunk) { agent.SendAudio(c) })
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("microphone stopped", "error", err)
			}
		}()
	}

	if cfg.Agent.Autostart {
		go func() {
			startCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := agent.Start(startCtx); err != nil {
				logger.Error("autostart failed", "error", err)
			}
		}()
	}

	return srv.ListenAndServe(ctx, cfg.Server.Listen)
}

// providerFactory builds adapters from the deployment config.
func providerFactory(cat *catalog.Catalog) orchestrator.ProviderFactory {
	creds := cfg.Credentials(cat)
	return func(id catalog.ProviderID) (voice.Provider, error) {
		opts := bundled.DefaultOptions()
		opts.APIKey = creds[id]
		opts.BaseURL = cfg.BaseURL(id)
		opts.Catalog = cat
		opts.Logger = logger
		if cfg.Agent.SetupTimeout > 0 {
			opts.SetupTimeout = cfg.Agent.SetupTimeout
		}
		return bundled.New(id, opts)
	}
}

// newMic returns the configured capture source. The mock backend produces a
// test tone so sessions can be exercised without a microphone.
func newMic(mc audioio.Config) (audioio.Source, error) {
	if mc.Backend == audioio.BackendMock {
		return audioio.NewMockSource(mc, logger, audioio.WithSineWave(440, 0.3)), nil
	}
	return audioio.NewSource(mc, logger)
}
