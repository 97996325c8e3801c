package audioio

import (
	"context"
	"io"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
)

// Source captures audio from a microphone or other input device.
// Chunks are mono PCM16 at Config().SampleRate.
type Source interface {
	// Start begins audio capture.
	// After calling Start, audio chunks will be available via Read or Stream.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next audio chunk, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (audio.Chunk, error)

	// Stream returns a channel that receives audio chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan audio.Chunk

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "ffmpeg", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// ChunksRead is the total number of chunks read.
	ChunksRead int64 `json:"chunks_read"`

	// SamplesRead is the total number of samples read.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of buffer overruns (dropped audio).
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

// Pump reads src until ctx ends or the source stops, handing every chunk to
// send. It returns nil when the source reports io.EOF.
func Pump(ctx context.Context, src Source, send func(audio.Chunk)) error {
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		send(chunk)
	}
}
