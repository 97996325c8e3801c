package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
)

const (
	ffplayBin = "ffplay"
	ffmpegBin = "ffmpeg"
)

// ffplayArgs plays mono s16le from stdin.
func ffplayArgs(cfg Config) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-volume", strconv.Itoa(cfg.Volume),
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}

// ffmpegArgs captures the default microphone as mono s16le on stdout.
func ffmpegArgs(goos string, cfg Config) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		device := cfg.Device
		if device == "" {
			device = ":0"
		}
		input = []string{"-f", "avfoundation", "-i", device}
	case "linux":
		device := cfg.Device
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "pulse", "-i", device}
	default:
		return nil, fmt.Errorf("%w: microphone capture is not implemented for %s", ErrDeviceUnavailable, goos)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le", "-",
	), nil
}

// FFplaySink plays audio through an ffplay child process fed on stdin.
// ffplay has no drain signal, so the sink tracks when the written audio will
// have finished playing and Flush waits for that instant.
type FFplaySink struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	running   bool
	closed    bool
	playUntil time.Time
	cleared   chan struct{}

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewFFplaySink returns a sink backed by ffplay. It fails with
// ErrDeviceUnavailable when ffplay is not installed.
func NewFFplaySink(cfg Config, logger *slog.Logger) (*FFplaySink, error) {
	if _, err := exec.LookPath(ffplayBin); err != nil {
		return nil, fmt.Errorf("%w: ffplay not found in PATH", ErrDeviceUnavailable)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFplaySink{
		cfg:     cfg,
		logger:  logger.With("component", "audioio.ffplay"),
		cleared: make(chan struct{}),
	}, nil
}

// Start launches ffplay.
func (s *FFplaySink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if err := s.spawnLocked(); err != nil {
		return err
	}
	s.running = true
	s.logger.Info("ffplay sink started", "sample_rate", s.cfg.SampleRate, "volume", s.cfg.Volume)
	return nil
}

func (s *FFplaySink) spawnLocked() error {
	cmd := exec.Command(ffplayBin, ffplayArgs(s.cfg)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.playUntil = time.Time{}
	return nil
}

func (s *FFplaySink) killLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
}

// Stop terminates ffplay. Start launches a fresh process.
func (s *FFplaySink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.killLocked()
	s.logger.Info("ffplay sink stopped")
	return nil
}

// Write pipes the chunk to ffplay.
func (s *FFplaySink) Write(ctx context.Context, chunk audio.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running || s.stdin == nil {
		return io.ErrClosedPipe
	}
	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		return fmt.Errorf("write to ffplay: %w", err)
	}

	now := time.Now()
	if s.playUntil.Before(now) {
		s.playUntil = now
	}
	s.playUntil = s.playUntil.Add(chunk.Duration())

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush waits until the written audio has played out. Clear interrupts it.
func (s *FFplaySink) Flush(ctx context.Context) error {
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
	case <-ctx.Done():
		return ctx.Err()
	case <-cleared:
	case <-timer.C:
	}
	return nil
}

// Clear drops whatever ffplay has buffered by restarting it.
func (s *FFplaySink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.cleared)
	s.cleared = make(chan struct{})
	s.clears.Add(1)

	if !s.running {
		return nil
	}
	s.killLocked()
	if err := s.spawnLocked(); err != nil {
		s.running = false
		return err
	}
	return nil
}

// Config returns the audio configuration.
func (s *FFplaySink) Config() Config { return s.cfg }

// Name returns "ffplay".
func (s *FFplaySink) Name() string { return ffplayBin }

// Close stops ffplay; the sink cannot be restarted.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *FFplaySink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := int64(0)
	if remaining := time.Until(s.playUntil); remaining > 0 {
		buffered = int64(remaining.Seconds() * float64(s.cfg.SampleRate))
	}
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Clears:          s.clears.Load(),
		Running:         running,
		Backend:         ffplayBin,
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*FFplaySink)(nil)

// FFmpegSource captures the microphone through an ffmpeg child process.
type FFmpegSource struct {
	cfg    Config
	args   []string
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	closed   bool
	streamCh chan audio.Chunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewFFmpegSource returns a source backed by ffmpeg. It fails with
// ErrDeviceUnavailable when ffmpeg is missing or the platform has no
// supported capture input.
func NewFFmpegSource(cfg Config, goos string, logger *slog.Logger) (*FFmpegSource, error) {
	if _, err := exec.LookPath(ffmpegBin); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
	}
	args, err := ffmpegArgs(goos, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSource{
		cfg:      cfg,
		args:     args,
		logger:   logger.With("component", "audioio.ffmpeg"),
		streamCh: make(chan audio.Chunk, 10),
	}, nil
}

// Start launches ffmpeg and begins reading PCM from its stdout.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.Command(ffmpegBin, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg capture: %w", err)
	}

	s.cmd = cmd
	s.running = true
	s.streamCh = make(chan audio.Chunk, 10)
	go s.readLoop(stdout, s.streamCh)

	s.logger.Info("ffmpeg source started", "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *FFmpegSource) readLoop(r io.Reader, out chan<- audio.Chunk) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("ffmpeg read ended", "error", err)
			}
			return
		}
		chunk := audio.Chunk{Samples: audio.BytesToPCM16(buf), SampleRate: s.cfg.SampleRate}
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop kills ffmpeg. The stream channel closes once its output drains.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.logger.Info("ffmpeg source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *FFmpegSource) Read(ctx context.Context) (audio.Chunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return audio.Chunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return audio.Chunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *FFmpegSource) Stream() <-chan audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *FFmpegSource) Config() Config { return s.cfg }

// Name returns "ffmpeg".
func (s *FFmpegSource) Name() string { return ffmpegBin }

// Close stops capture; the source cannot be restarted.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *FFmpegSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     ffmpegBin,
	}
}

var _ SourceWithStats = (*FFmpegSource)(nil)
