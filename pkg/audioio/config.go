// Package audioio provides audio playback and capture devices for the agent.
//
// This package supports multiple backends:
//   - ffplay/ffmpeg - Local speaker and microphone through the FFmpeg tools
//   - Paced - A silent speaker that consumes audio in real time
//   - Mock - CI/Testing without hardware
//   - None - No device; writes fail with ErrDeviceUnavailable
//
// The backend is selected automatically based on what is installed,
// or can be explicitly specified via configuration.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceUnavailable is returned by sinks and sources that have no device
// behind them. Playback treats it as "drop the audio".
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects ffplay/ffmpeg when installed, else none.
	BackendAuto Backend = "auto"
	// BackendFFmpeg plays through ffplay and captures through ffmpeg.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendPaced discards audio at real-time speed.
	BackendPaced Backend = "paced"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
	// BackendNone has no device.
	BackendNone Backend = "none"
)

// ParseBackend converts a config string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendFFmpeg, BackendPaced, BackendMock, BackendNone:
		return b, nil
	}
	return "", fmt.Errorf("unknown audio backend %q", s)
}

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `toml:"backend" json:"backend"`

	// SampleRate is the device sample rate in Hz. Audio written at another
	// rate is resampled by the player before it reaches the sink.
	// Default: 24000 (vendor output rate)
	SampleRate int `toml:"sample_rate" json:"sample_rate"`

	// BufferDuration is the size of capture buffers.
	// Default: 20ms (480 samples at 24kHz)
	BufferDuration time.Duration `toml:"buffer_duration" json:"buffer_duration"`

	// Device is the capture device passed to ffmpeg.
	// Examples:
	//   - Linux (pulse): "default"
	//   - macOS (avfoundation): ":0"
	//   - Mock: ignored
	Device string `toml:"device" json:"device"`

	// Volume is the ffplay playback volume, 0-100.
	// Default: 80
	Volume int `toml:"volume" json:"volume"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		BufferDuration: 20 * time.Millisecond,
		Volume:         80,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("volume must be within 0-100, got %d", c.Volume)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (PCM16 mono).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * 2
}
