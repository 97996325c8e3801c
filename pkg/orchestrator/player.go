package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
)

// Player plays assistant audio strictly in arrival order. One goroutine
// drains the queue: each chunk is written to the sink and flushed before the
// next one is taken, so chunks never overlap.
type Player struct {
	sink   audioio.Sink
	logger *slog.Logger

	mu      sync.Mutex
	queue   []audio.Chunk
	cancel  context.CancelFunc
	running bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	played  atomic.Int64
	dropped atomic.Int64
}

// PlayerStats are playback counters.
type PlayerStats struct {
	Queued  int   `json:"queued"`
	Played  int64 `json:"played"`
	Dropped int64 `json:"dropped"`
}

// NewPlayer creates a player on sink. A nil sink drops everything.
func NewPlayer(sink audioio.Sink, logger *slog.Logger) *Player {
	if sink == nil {
		sink = audioio.NewNoSink(audioio.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		sink:   sink,
		logger: logger.With("component", "orchestrator.player", "sink", sink.Name()),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start opens the sink and starts the playback loop. A sink that fails to
// start leaves the player running; its writes are dropped.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.closed {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	if err := p.sink.Start(ctx); err != nil {
		p.logger.Warn("audio sink unavailable, playback disabled", "error", err)
	}
	go p.loop()
}

// Enqueue appends a chunk to the queue.
func (p *Player) Enqueue(chunk audio.Chunk) {
	if len(chunk.Samples) == 0 {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, chunk)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Clear drops queued audio and cuts the chunk being played.
func (p *Player) Clear() {
	p.mu.Lock()
	n := len(p.queue)
	p.queue = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("sink clear failed", "error", err)
	}
	if n > 0 {
		p.logger.Debug("playback cleared", "dropped_chunks", n)
	}
}

// Pending returns the number of queued chunks.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns playback counters.
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		Queued:  p.Pending(),
		Played:  p.played.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Close stops the loop and the sink. Queued audio is discarded.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	running := p.running
	p.mu.Unlock()

	p.Clear()
	if running {
		close(p.stop)
		<-p.done
	}
	return p.sink.Stop()
}

func (p *Player) loop() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}

		for {
			chunk, ctx, ok := p.next()
			if !ok {
				break
			}
			p.play(ctx, chunk)

			select {
			case <-p.stop:
				return
			default:
			}
		}
	}
}

// next pops the head of the queue together with a context that Clear cancels.
func (p *Player) next() (audio.Chunk, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return audio.Chunk{}, nil, false
	}
	chunk := p.queue[0]
	p.queue[0] = audio.Chunk{}
	p.queue = p.queue[1:]

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	return chunk, ctx, true
}

func (p *Player) play(ctx context.Context, chunk audio.Chunk) {
	defer func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	if rate := p.sink.Config().SampleRate; rate > 0 && chunk.SampleRate > 0 && chunk.SampleRate != rate {
		chunk = audio.Chunk{
			Samples:    audio.Resample(chunk.Samples, chunk.SampleRate, rate),
			SampleRate: rate,
		}
	}

	if ctx.Err() != nil {
		p.dropped.Add(1)
		return
	}

	if err := p.sink.Write(ctx, chunk); err != nil {
		p.dropped.Add(1)
		if errors.Is(err, audioio.ErrDeviceUnavailable) || errors.Is(err, io.ErrClosedPipe) {
			return
		}
		p.logger.Warn("audio write failed", "error", err)
		return
	}
	if err := p.sink.Flush(ctx); err != nil && ctx.Err() == nil {
		p.logger.Debug("audio flush failed", "error", err)
	}
	p.played.Add(1)
}
