package audioio

import (
	"context"
	"io"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback.
	// After calling Start, audio can be written via Write.
	Start(ctx context.Context) error

	// Stop halts audio playback.
	// It is safe to call Stop multiple times.
	Stop() error

	// Write sends an audio chunk to the output device.
	// Chunks arrive at Config().SampleRate.
	Write(ctx context.Context, chunk audio.Chunk) error

	// Flush waits for all buffered audio to be played.
	Flush(ctx context.Context) error

	// Clear discards all buffered audio immediately.
	// Use this to interrupt playback (e.g., when user speaks).
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "ffplay", "paced", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the sink cannot be restarted.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// ChunksWritten is the total number of chunks written.
	ChunksWritten int64 `json:"chunks_written"`

	// SamplesWritten is the total number of samples written.
	SamplesWritten int64 `json:"samples_written"`

	// Clears is the number of times buffered audio was discarded.
	Clears int64 `json:"clears"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`

	// BufferedSamples is the number of samples currently buffered.
	BufferedSamples int64 `json:"buffered_samples"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

// NoSink is a Sink without a device. Every write fails with
// ErrDeviceUnavailable.
type NoSink struct {
	cfg Config
}

// NewNoSink returns a sink that reports ErrDeviceUnavailable.
func NewNoSink(cfg Config) *NoSink { return &NoSink{cfg: cfg} }

func (s *NoSink) Start(context.Context) error { return nil }
func (s *NoSink) Stop() error                  { return nil }
func (s *NoSink) Write(context.Context, audio.Chunk) error {
	return ErrDeviceUnavailable
}
func (s *NoSink) Flush(context.Context) error { return nil }
func (s *NoSink) Clear() error                { return nil }
func (s *NoSink) Config() Config              { return s.cfg }
func (s *NoSink) Name() string                { return string(BackendNone) }
func (s *NoSink) Close() error                { return nil }

var _ Sink = (*NoSink)(nil)
