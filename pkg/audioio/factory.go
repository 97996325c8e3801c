package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
// BackendPaced has no capture side and yields a silent mock source.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend(ffmpegBin)
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock, BackendPaced:
		return NewMockSource(cfg, logger), nil
	case BackendFFmpeg:
		return NewFFmpegSource(cfg, runtime.GOOS, logger)
	case BackendNone:
		return nil, ErrDeviceUnavailable
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates a new audio sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
// An auto sink never fails for lack of a device: it falls back to NoSink.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	auto := cfg.Backend == BackendAuto
	backend := cfg.Backend
	if auto {
		backend = detectBestBackend(ffplayBin)
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendPaced:
		return NewPacedSink(cfg, logger), nil
	case BackendFFmpeg:
		sink, err := NewFFplaySink(cfg, logger)
		if err != nil {
			if auto && errors.Is(err, ErrDeviceUnavailable) {
				logger.Warn("no speaker available, audio will be dropped", "error", err)
				return NewNoSink(cfg), nil
			}
			return nil, err
		}
		return sink, nil
	case BackendNone:
		return NewNoSink(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns ffmpeg when the named tool is installed.
func detectBestBackend(tool string) Backend {
	if _, err := exec.LookPath(tool); err == nil {
		return BackendFFmpeg
	}
	return BackendNone
}

// AvailableBackends returns the list of backends available on this machine.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendPaced, BackendNone}
	if detectBestBackend(ffplayBin) == BackendFFmpeg {
		backends = append(backends, BackendFFmpeg)
	}
	return backends
}
