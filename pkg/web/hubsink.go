package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
)

// Broadcaster is the hub surface a HubSink writes to.
type Broadcaster interface {
	BroadcastBinary(data []byte)
	BroadcastJSON(v any) error
	ClientCount() int
}

// HubSink is an audioio.Sink that plays assistant audio in connected
// browsers. Writes are broadcast immediately; Flush paces the caller to
// real time so Clear can still cut the remainder of a response.
type HubSink struct {
	hub    Broadcaster
	cfg    audioio.Config
	logger *slog.Logger

	mu        sync.Mutex
	playUntil time.Time
	cleared   chan struct{}
	running   bool
	closed    bool

	chunks  int64
	samples int64
	clears  int64
}

// NewHubSink creates a sink broadcasting PCM16 at cfg.SampleRate.
func NewHubSink(h Broadcaster, cfg audioio.Config, logger *slog.Logger) *HubSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audioio.DefaultConfig().SampleRate
	}
	return &HubSink{
		hub:     h,
		cfg:     cfg,
		logger:  logger.With("component", "web.hubsink"),
		cleared: make(chan struct{}),
	}
}

// Start implements audioio.Sink.
func (s *HubSink) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audioio.ErrDeviceUnavailable
	}
	s.running = true
	return nil
}

// Stop implements audioio.Sink.
func (s *HubSink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.Clear()
}

// Write broadcasts chunk. It fails with audioio.ErrDeviceUnavailable when
// no browser is listening.
func (s *HubSink) Write(ctx context.Context, chunk audio.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunk.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed || s.hub.ClientCount() == 0 {
		s.mu.Unlock()
		return audioio.ErrDeviceUnavailable
	}
	now := time.Now()
	if s.playUntil.Before(now) {
		s.playUntil = now
	}
	s.playUntil = s.playUntil.Add(chunk.Duration())
	s.chunks++
	s.samples += int64(len(chunk.Samples))
	s.mu.Unlock()

	s.hub.BroadcastBinary(chunk.Bytes())
	return nil
}

// Flush blocks until the audio written so far has played out in real time,
// Clear is called, or ctx is done.
func (s *HubSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.playUntil)
	cleared := s.cleared
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-cleared:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops pending playback and tells browsers to flush their buffers.
func (s *HubSink) Clear() error {
	s.mu.Lock()
	s.playUntil = time.Time{}
	close(s.cleared)
	s.cleared = make(chan struct{})
	s.clears++
	closed := s.closed
	s.mu.Unlock()

	s.logger.Debug("playback cleared")
	if closed || s.hub.ClientCount() == 0 {
		return nil
	}
	return s.hub.BroadcastJSON(map[string]string{"type": "clear"})
}

// Config implements audioio.Sink.
func (s *HubSink) Config() audioio.Config { return s.cfg }

// Name implements audioio.Sink.
func (s *HubSink) Name() string { return "browser" }

// Close implements audioio.Sink.
func (s *HubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false
	close(s.cleared)
	s.cleared = make(chan struct{})
	return nil
}

// Stats implements audioio.SinkWithStats.
func (s *HubSink) Stats() audioio.SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buffered int64
	if wait := time.Until(s.playUntil); wait > 0 {
		buffered = int64(wait.Seconds() * float64(s.cfg.SampleRate))
	}
	return audioio.SinkStats{
		ChunksWritten:   s.chunks,
		SamplesWritten:  s.samples,
		Clears:          s.clears,
		Running:         s.running,
		Backend:         s.Name(),
		BufferedSamples: buffered,
	}
}

var _ audioio.SinkWithStats = (*HubSink)(nil)
