package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan audio.Chunk
	stopCh   chan struct{}

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.mock_source"),
		streamCh:  make(chan audio.Chunk, 10),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan audio.Chunk, 10)

	go m.generateLoop(ctx, m.stopCh, m.streamCh)

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh <-chan struct{}, out chan<- audio.Chunk) {
	defer close(out)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.markStopped()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			chunk := m.generateChunk()
			select {
			case out <- chunk:
				m.chunksRead.Add(1)
				m.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				m.overruns.Add(1)
			}
		}
	}
}

func (m *MockSource) generateChunk() audio.Chunk {
	samples := make([]int16, m.cfg.BufferSize())

	if m.frequency > 0 {
		for i := range samples {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			samples[i] = int16(sample * 32767)

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return audio.Chunk{Samples: samples, SampleRate: m.cfg.SampleRate}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)

	m.logger.Info("mock audio source stopped")

	return nil
}

// markStopped records that the generator exited on its own.
func (m *MockSource) markStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stopCh)
	}
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (audio.Chunk, error) {
	ch := m.Stream()
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
func (m *MockSource) Stream() <-chan audio.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     string(BackendMock),
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink. It discards audio but keeps a history of
// every chunk written. Flush waits a token amount of time unless the sink is
// paced, in which case it waits the full playback duration.
type MockSink struct {
	cfg    Config
	logger *slog.Logger
	name   string
	paced  bool

	mu       sync.Mutex
	running  bool
	closed   bool
	failWith error
	buffer   []audio.Chunk
	written  []audio.Chunk
	cleared  chan struct{}

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	return newMockSink(cfg, logger, string(BackendMock), false)
}

// NewPacedSink creates a silent sink whose Flush takes as long as the audio
// would take to play. It keeps turn timing realistic on machines without
// speakers.
func NewPacedSink(cfg Config, logger *slog.Logger) *MockSink {
	return newMockSink(cfg, logger, string(BackendPaced), true)
}

func newMockSink(cfg Config, logger *slog.Logger, name string, paced bool) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &MockSink{
		cfg:     cfg,
		logger:  logger.With("component", "audioio."+name+"_sink"),
		name:    name,
		paced:   paced,
		buffer:  make([]audio.Chunk, 0, 100),
		cleared: make(chan struct{}),
	}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}

	m.running = true
	m.logger.Info("audio sink started")

	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.logger.Info("audio sink stopped")

	return nil
}

// FailWrites makes every following Write return err. Pass nil to recover.
func (m *MockSink) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Write accepts an audio chunk.
func (m *MockSink) Write(ctx context.Context, chunk audio.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	if m.failWith != nil {
		return m.failWith
	}

	m.buffer = append(m.buffer, chunk)
	m.written = append(m.written, chunk)

	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))

	return nil
}

// Flush waits for the buffered audio to "play". Clear interrupts it.
func (m *MockSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	var duration time.Duration
	for _, chunk := range m.buffer {
		duration += chunk.Duration()
	}
	cleared := m.cleared
	m.mu.Unlock()

	wait := duration
	if !m.paced {
		// Token wait only
		wait = duration / 100
		if wait > 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleared:
			return nil
		case <-timer.C:
		}
	}

	m.mu.Lock()
	m.buffer = m.buffer[:0]
	m.mu.Unlock()
	return nil
}

// Clear discards buffered audio and releases a pending Flush.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = m.buffer[:0]
	close(m.cleared)
	m.cleared = make(chan struct{})
	m.clears.Add(1)
	m.logger.Debug("audio sink cleared")

	return nil
}

// Written returns every chunk accepted since the sink was created, in order.
func (m *MockSink) Written() []audio.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audio.Chunk, len(m.written))
	copy(out, m.written)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns the backend name.
func (m *MockSink) Name() string {
	return m.name
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	buffered := int64(0)
	for _, chunk := range m.buffer {
		buffered += int64(len(chunk.Samples))
	}
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:   m.chunksWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		Clears:          m.clears.Load(),
		Running:         running,
		Backend:         m.name,
		BufferedSamples: buffered,
	}
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)
