package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-voiceagent/internal/observability"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

var errBoom = errors.New("vendor rejected setup")

func TestStart_ConfiguredModel(t *testing.T) {
	fx := newFixture(t, nil)
	m := fx.start(t)

	if fx.factory.callCount() != 1 || fx.factory.calls[0] != catalog.ProviderGemini {
		t.Fatalf("factory calls = %v, want [gemini]", fx.factory.calls)
	}
	if got := fx.o.Status(); got != voice.StatusConnected {
		t.Errorf("Status() = %s, want connected", got)
	}
	model, ok := fx.o.ActiveModel()
	if !ok || model.Key != catalog.ModelGeminiFlashLive {
		t.Errorf("ActiveModel() = %q, %v", model.Key, ok)
	}

	if m.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1", m.SessionCount())
	}
	cfg := m.Sessions[0]
	if cfg.ModelKey != catalog.ModelGeminiFlashLive {
		t.Errorf("ModelKey = %q", cfg.ModelKey)
	}
	if cfg.Voice != "Puck" {
		t.Errorf("Voice = %q, want provider default Puck", cfg.Voice)
	}
	if cfg.SystemPrompt != catalog.DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q", cfg.SystemPrompt)
	}
	if cfg.VAD.Threshold != 0.5 {
		t.Errorf("VAD.Threshold = %v, want default preset 0.5", cfg.VAD.Threshold)
	}
	names := toolNames(cfg.Tools)
	for _, want := range []string{tools.GetContext, tools.ExecuteAction, tools.Navigate, "lookup_order"} {
		if !names[want] {
			t.Errorf("session tools missing %s", want)
		}
	}
	if len(names) != len(cfg.Tools) {
		t.Errorf("session advertises %d tools under %d names", len(cfg.Tools), len(names))
	}

	events := fx.rec.until(t, voice.EventSessionStarted)
	if count(events, voice.EventConnected) != 1 {
		t.Error("connected event was not republished before session_started")
	}
	started := events[len(events)-1]
	if started.Model != catalog.ModelGeminiFlashLive || started.Provider != "gemini" {
		t.Errorf("session_started = %+v", started)
	}
	if started.Text == "" || started.Text != fx.o.SessionID() {
		t.Errorf("session_started id = %q, SessionID() = %q", started.Text, fx.o.SessionID())
	}
}

func TestStartWithModel(t *testing.T) {
	fx := newFixture(t, nil)

	if err := fx.o.StartWithModel(context.Background(), catalog.ModelGPT4oMiniRealtime); err != nil {
		t.Fatalf("StartWithModel() error = %v", err)
	}
	if fx.factory.calls[0] != catalog.ProviderOpenAI {
		t.Errorf("factory calls = %v, want [openai]", fx.factory.calls)
	}
	model, _ := fx.o.ActiveModel()
	if model.Key != catalog.ModelGPT4oMiniRealtime {
		t.Errorf("ActiveModel() = %q", model.Key)
	}
	if got := fx.factory.last().Sessions[0].Voice; got != "alloy" {
		t.Errorf("Voice = %q, want alloy", got)
	}
}

func TestStart_UnknownModel(t *testing.T) {
	fx := newFixture(t, func(s *catalog.Settings, _ *Options) {
		s.Model = "gpt-9-omni"
	})

	err := fx.o.Start(context.Background())
	if !errors.Is(err, catalog.ErrUnknownModel) {
		t.Fatalf("Start() error = %v, want ErrUnknownModel", err)
	}
	if n := fx.factory.callCount(); n != 0 {
		t.Errorf("factory called %d times, want 0", n)
	}
	if n := count(fx.rec.drain(), voice.EventFallbackAttempt); n != 0 {
		t.Errorf("fallback attempts = %d, want 0", n)
	}
}

func TestStart_UnknownProviderSkipsFallback(t *testing.T) {
	fx := newFixture(t, nil)
	fx.factory.err = fmt.Errorf("%w: acme", catalog.ErrUnknownProvider)

	err := fx.o.Start(context.Background())
	if !errors.Is(err, catalog.ErrUnknownProvider) {
		t.Fatalf("Start() error = %v, want ErrUnknownProvider", err)
	}
	if errors.Is(err, ErrAllProvidersFailed) {
		t.Error("unknown provider must not walk the fallback chain")
	}
	if n := fx.factory.callCount(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
	if n := count(fx.rec.drain(), voice.EventFallbackAttempt); n != 0 {
		t.Errorf("fallback attempts = %d, want 0", n)
	}
}

func TestFallback_Exhausted(t *testing.T) {
	metrics := observability.NewMetrics("test")
	fx := newFixture(t, func(_ *catalog.Settings, opts *Options) {
		opts.Metrics = metrics
	})
	fx.factory.fail[catalog.ProviderGemini] = errBoom
	fx.factory.fail[catalog.ProviderOpenAI] = errBoom

	err := fx.o.Start(context.Background())
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Start() error = %v, want ErrAllProvidersFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error should unwrap to the last attempt's cause: %v", err)
	}

	var ferr *FallbackError
	if !errors.As(err, &ferr) {
		t.Fatalf("error %T is not a *FallbackError", err)
	}
	wantModels := []string{
		catalog.ModelGeminiFlashLive,
		catalog.ModelGPT4oRealtime,
		catalog.ModelGeminiNativeAudio,
		catalog.ModelGPT4oMiniRealtime,
	}
	if got := ferr.Models(); !reflect.DeepEqual(got, wantModels) {
		t.Errorf("attempted models = %v, want %v", got, wantModels)
	}
	if n := fx.factory.callCount(); n != 4 {
		t.Errorf("factory called %d times, want 4", n)
	}

	events := fx.rec.drain()
	var attempts []voice.Event
	for _, e := range events {
		if e.Type == voice.EventFallbackAttempt {
			attempts = append(attempts, e)
		}
	}
	if len(attempts) != 3 {
		t.Fatalf("fallback attempts = %d, want 3", len(attempts))
	}
	for i, e := range attempts {
		if e.Attempt != i+1 || e.Model != wantModels[i+1] {
			t.Errorf("attempt %d = (%d, %s), want (%d, %s)", i, e.Attempt, e.Model, i+1, wantModels[i+1])
		}
	}
	if n := count(events, voice.EventFallbackExhausted); n != 1 {
		t.Errorf("fallback_exhausted events = %d, want 1", n)
	}
	if n := count(events, voice.EventSessionStarted); n != 0 {
		t.Errorf("session_started events = %d, want 0", n)
	}

	if fx.o.Status() != voice.StatusIdle {
		t.Errorf("Status() = %s, want idle", fx.o.Status())
	}
	if _, ok := fx.o.ActiveModel(); ok {
		t.Error("ActiveModel() reports a session after exhaustion")
	}

	failures := testutil.ToFloat64(metrics.FallbackAttempts.WithLabelValues(catalog.ModelGPT4oRealtime, "failure"))
	if failures != 1 {
		t.Errorf("fallback failure metric = %v, want 1", failures)
	}
}

func TestFallback_FirstCandidateSucceeds(t *testing.T) {
	fx := newFixture(t, func(s *catalog.Settings, _ *Options) {
		s.Voice = "Kore"
	})
	fx.factory.fail[catalog.ProviderGemini] = errBoom

	if err := fx.o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	model, ok := fx.o.ActiveModel()
	if !ok || model.Key != catalog.ModelGPT4oRealtime {
		t.Fatalf("ActiveModel() = %q, %v; want %s", model.Key, ok, catalog.ModelGPT4oRealtime)
	}
	if got := fx.factory.last().Sessions[0].Voice; got != "alloy" {
		t.Errorf("Voice = %q, want alloy (Kore is not an OpenAI voice)", got)
	}

	events := fx.rec.until(t, voice.EventSessionStarted)
	if n := count(events, voice.EventFallbackAttempt); n != 1 {
		t.Errorf("fallback attempts = %d, want 1", n)
	}
	if n := count(events, voice.EventFallbackExhausted); n != 0 {
		t.Errorf("fallback_exhausted events = %d, want 0", n)
	}
	if n := fx.factory.callCount(); n != 2 {
		t.Errorf("factory called %d times, want 2", n)
	}
}

func TestFallback_Disabled(t *testing.T) {
	fx := newFixture(t, func(s *catalog.Settings, _ *Options) {
		s.FallbackEnabled = false
	})
	fx.factory.fail[catalog.ProviderGemini] = errBoom

	err := fx.o.Start(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Start() error = %v, want the primary's error", err)
	}
	if errors.Is(err, ErrAllProvidersFailed) {
		t.Error("disabled fallback must return the original error")
	}
	if n := fx.factory.callCount(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
}

func TestFallback_ChainOverride(t *testing.T) {
	fx := newFixture(t, func(s *catalog.Settings, _ *Options) {
		s.FallbackChain = []string{catalog.ModelGPTRealtime}
	})
	fx.factory.fail[catalog.ProviderGemini] = errBoom
	fx.factory.fail[catalog.ProviderOpenAI] = errBoom

	err := fx.o.Start(context.Background())
	var ferr *FallbackError
	if !errors.As(err, &ferr) {
		t.Fatalf("Start() error = %v, want *FallbackError", err)
	}
	want := []string{catalog.ModelGeminiFlashLive, catalog.ModelGPTRealtime}
	if got := ferr.Models(); !reflect.DeepEqual(got, want) {
		t.Errorf("attempted models = %v, want %v", got, want)
	}
}

func TestStart_ProviderNotConfigured(t *testing.T) {
	for _, fallback := range []bool{false, true} {
		t.Run(fmt.Sprintf("fallback=%t", fallback), func(t *testing.T) {
			fx := newFixture(t, func(s *catalog.Settings, _ *Options) {
				s.FallbackEnabled = fallback
			})
			fx.factory.unconfigured[catalog.ProviderGemini] = true

			err := fx.o.Start(context.Background())
			if !errors.Is(err, ErrProviderNotConfigured) {
				t.Fatalf("Start() error = %v, want ErrProviderNotConfigured", err)
			}
			if errors.Is(err, ErrAllProvidersFailed) {
				t.Errorf("missing key on the primary went through the fallback chain: %v", err)
			}
			if n := fx.factory.callCount(); n != 1 {
				t.Errorf("factory called %d times, want 1", n)
			}
			if n := fx.factory.last().SessionCount(); n != 0 {
				t.Errorf("unconfigured provider got %d sessions", n)
			}
			if fx.o.Status() != voice.StatusIdle {
				t.Errorf("Status() = %s, want idle", fx.o.Status())
			}
		})
	}
}

func TestStart_UnconfiguredFallbackCandidateCountsAsAttempt(t *testing.T) {
	fx := newFixture(t, nil)
	fx.factory.fail[catalog.ProviderGemini] = errBoom
	fx.factory.unconfigured[catalog.ProviderOpenAI] = true

	err := fx.o.Start(context.Background())
	var ferr *FallbackError
	if !errors.As(err, &ferr) {
		t.Fatalf("Start() error = %v, want *FallbackError", err)
	}
	skipped := 0
	for _, a := range ferr.Attempts {
		if errors.Is(a.Err, ErrProviderNotConfigured) {
			skipped++
		}
	}
	if skipped == 0 {
		t.Errorf("no attempt reported ErrProviderNotConfigured: %v", ferr.Attempts)
	}
}

func TestRegistry_HostCannotShadowBuiltin(t *testing.T) {
	fx := newFixture(t, nil)
	err := fx.o.Registry().Register(tools.Definition{
		Name:        tools.Navigate,
		Description: "host navigation",
		Handler: func(context.Context, map[string]any, tools.AppContext) (any, error) {
			return "host", nil
		},
	})
	if !errors.Is(err, tools.ErrDuplicateTool) {
		t.Fatalf("Register(navigate) error = %v, want ErrDuplicateTool", err)
	}

	fx.start(t)
	seen := 0
	for _, def := range fx.factory.last().Sessions[0].Tools {
		if def.Name == tools.Navigate {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("navigate advertised %d times, want 1", seen)
	}
}

func TestStart_CancelledContext(t *testing.T) {
	fx := newFixture(t, nil)
	fx.factory.fail[catalog.ProviderGemini] = errBoom

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.o.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if n := fx.factory.callCount(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	fx := newFixture(t, nil)
	fx.start(t)

	if err := fx.o.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if n := fx.factory.callCount(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
}

func TestStop(t *testing.T) {
	fx := newFixture(t, nil)
	m := fx.start(t)
	fx.rec.until(t, voice.EventSessionStarted)

	if err := fx.o.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if fx.o.Status() != voice.StatusIdle {
		t.Errorf("Status() = %s, want idle", fx.o.Status())
	}
	if fx.o.SessionID() != "" {
		t.Error("SessionID() should be empty after Stop")
	}

	events := fx.rec.until(t, voice.EventSessionStopped)
	if count(events, voice.EventDisconnected) != 1 {
		t.Error("provider disconnect was not republished")
	}
	if stopped := events[len(events)-1]; stopped.Reason != "stopped" || stopped.Model != catalog.ModelGeminiFlashLive {
		t.Errorf("session_stopped = %+v", stopped)
	}

	if err := fx.o.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if m.EndCalls != 1 {
		t.Errorf("EndSession called %d times, want 1", m.EndCalls)
	}
	if n := count(fx.rec.drain(), voice.EventSessionStopped); n != 0 {
		t.Errorf("idle Stop emitted %d session_stopped events", n)
	}

	// Late vendor output is ignored once the session is gone.
	m.SimulateAudio(make([]int16, 240))
	time.Sleep(50 * time.Millisecond)
	if n := len(fx.sink.Written()); n != 0 {
		t.Errorf("sink got %d chunks after Stop", n)
	}
}

func TestSendAudio(t *testing.T) {
	fx := newFixture(t, nil)

	fx.o.SendAudio(audio.PCM16Frame{1, 2, 3})

	m := fx.start(t)
	fx.o.SendAudio(audio.PCM16Frame{4, 5, 6})

	frames := m.AudioFrames()
	if len(frames) != 1 || frames[0][0] != 4 {
		t.Fatalf("provider frames = %v, want only the frame sent while active", frames)
	}
	if fx.o.Status() != voice.StatusListening {
		t.Errorf("Status() = %s, want listening", fx.o.Status())
	}
}

func TestRestart(t *testing.T) {
	fx := newFixture(t, nil)

	if err := fx.o.Restart(context.Background()); err != nil {
		t.Fatalf("idle Restart() error = %v", err)
	}
	if n := fx.factory.callCount(); n != 0 {
		t.Fatalf("idle Restart() started a session")
	}

	first := fx.start(t)
	firstID := fx.o.SessionID()

	if err := fx.o.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if first.EndCalls != 1 {
		t.Errorf("old session EndSession calls = %d, want 1", first.EndCalls)
	}
	if n := fx.factory.callCount(); n != 2 {
		t.Errorf("factory called %d times, want 2", n)
	}
	if fx.o.Status() != voice.StatusConnected {
		t.Errorf("Status() = %s, want connected", fx.o.Status())
	}
	if id := fx.o.SessionID(); id == "" || id == firstID {
		t.Errorf("SessionID() = %q, want a new id (old %q)", id, firstID)
	}
}

func TestUpdateConfig(t *testing.T) {
	str := func(s string) *string { return &s }
	off := false

	t.Run("rejects invalid settings", func(t *testing.T) {
		fx := newFixture(t, nil)

		got, err := fx.o.UpdateConfig(context.Background(), catalog.SettingsPatch{Model: str("nope")})
		if !errors.Is(err, catalog.ErrUnknownModel) {
			t.Fatalf("UpdateConfig() error = %v, want ErrUnknownModel", err)
		}
		if got.Model != catalog.ModelGeminiFlashLive || fx.o.Settings().Model != catalog.ModelGeminiFlashLive {
			t.Error("invalid patch changed the settings")
		}
		if stored, _ := fx.store.Load(); stored.Model != catalog.ModelGeminiFlashLive {
			t.Errorf("store model = %q", stored.Model)
		}
	})

	t.Run("persists without starting when idle", func(t *testing.T) {
		fx := newFixture(t, nil)

		got, err := fx.o.UpdateConfig(context.Background(), catalog.SettingsPatch{Voice: str("Kore")})
		if err != nil {
			t.Fatalf("UpdateConfig() error = %v", err)
		}
		if got.Voice != "Kore" {
			t.Errorf("returned Voice = %q", got.Voice)
		}
		if stored, _ := fx.store.Load(); stored.Voice != "Kore" {
			t.Errorf("stored Voice = %q", stored.Voice)
		}
		if n := fx.factory.callCount(); n != 0 {
			t.Errorf("idle update started %d sessions", n)
		}
	})

	t.Run("restarts an active session", func(t *testing.T) {
		fx := newFixture(t, nil)
		first := fx.start(t)

		if _, err := fx.o.UpdateConfig(context.Background(), catalog.SettingsPatch{Voice: str("Charon")}); err != nil {
			t.Fatalf("UpdateConfig() error = %v", err)
		}
		if first.EndCalls != 1 {
			t.Errorf("old session EndSession calls = %d, want 1", first.EndCalls)
		}
		if n := fx.factory.callCount(); n != 2 {
			t.Fatalf("factory called %d times, want 2", n)
		}
		if got := fx.factory.last().Sessions[0].Voice; got != "Charon" {
			t.Errorf("new session Voice = %q, want Charon", got)
		}
	})

	t.Run("fallback toggle does not restart", func(t *testing.T) {
		fx := newFixture(t, nil)
		fx.start(t)

		if _, err := fx.o.UpdateConfig(context.Background(), catalog.SettingsPatch{FallbackEnabled: &off}); err != nil {
			t.Fatalf("UpdateConfig() error = %v", err)
		}
		if n := fx.factory.callCount(); n != 1 {
			t.Errorf("factory called %d times, want 1", n)
		}
		if fx.o.Settings().FallbackEnabled {
			t.Error("FallbackEnabled still true")
		}
	})

	t.Run("store failure keeps the old settings", func(t *testing.T) {
		fx := newFixture(t, nil)
		errDisk := errors.New("disk full")
		fx.store.SaveErr = errDisk

		_, err := fx.o.UpdateConfig(context.Background(), catalog.SettingsPatch{Voice: str("Kore")})
		if !errors.Is(err, errDisk) {
			t.Fatalf("UpdateConfig() error = %v, want %v", err, errDisk)
		}
		if fx.o.Settings().Voice != "" {
			t.Errorf("Voice = %q after failed save", fx.o.Settings().Voice)
		}
	})
}

func TestRemoteDisconnect(t *testing.T) {
	fx := newFixture(t, nil)
	m := fx.start(t)
	fx.rec.until(t, voice.EventSessionStarted)

	m.SimulateDisconnect(1006, "upstream went away")

	events := fx.rec.until(t, voice.EventSessionStopped)
	if count(events, voice.EventDisconnected) != 1 {
		t.Error("disconnect was not republished")
	}
	stopped := events[len(events)-1]
	if stopped.Code != 1006 || stopped.Reason != "upstream went away" {
		t.Errorf("session_stopped = %+v", stopped)
	}
	if _, ok := fx.o.ActiveModel(); ok {
		t.Error("session still active after remote close")
	}
	if m.EndCalls != 0 {
		t.Errorf("EndSession called %d times for a remote close", m.EndCalls)
	}

	if err := fx.o.Start(context.Background()); err != nil {
		t.Fatalf("Start() after remote close error = %v", err)
	}
	if n := fx.factory.callCount(); n != 2 {
		t.Errorf("factory called %d times, want 2", n)
	}
}

func TestEventForwarding(t *testing.T) {
	fx := newFixture(t, nil)
	m := fx.start(t)
	fx.rec.until(t, voice.EventSessionStarted)

	m.SimulateSpeechStopped()
	m.SimulateTranscript(voice.RoleUser, "where is my order")
	m.SimulateAudio(make([]int16, 240))
	m.SimulateResponse("It shipped yesterday.")
	m.SimulateTurnComplete()

	events := fx.rec.until(t, voice.EventTurnComplete)
	for _, typ := range []voice.EventType{voice.EventSpeechStopped, voice.EventTranscript, voice.EventLatency, voice.EventResponse} {
		if count(events, typ) != 1 {
			t.Errorf("%s events = %d, want 1", typ, count(events, typ))
		}
	}
	if n := count(events, voice.EventAudio); n != 0 {
		t.Errorf("audio events republished %d times", n)
	}
	for _, e := range events {
		if e.Model != catalog.ModelGeminiFlashLive {
			t.Errorf("%s event Model = %q", e.Type, e.Model)
		}
	}
}

func TestProviderErrorMetric(t *testing.T) {
	metrics := observability.NewMetrics("test")
	fx := newFixture(t, func(_ *catalog.Settings, opts *Options) {
		opts.Metrics = metrics
	})
	m := fx.start(t)

	m.SimulateError(voice.NewAPIError("rate_limit_exceeded", "requests", "slow down"))

	ev := fx.rec.wait(t, voice.EventError)
	if ev.Err == nil {
		t.Fatal("error event lost its error")
	}
	got := testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("gemini", "rate_limit_exceeded"))
	if got != 1 {
		t.Errorf("provider error metric = %v, want 1", got)
	}
}

func TestClose(t *testing.T) {
	fx := newFixture(t, nil)
	m := fx.start(t)

	if err := fx.o.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.EndCalls != 1 {
		t.Errorf("EndSession calls = %d, want 1", m.EndCalls)
	}
	if err := fx.o.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}
