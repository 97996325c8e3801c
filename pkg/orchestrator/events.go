package orchestrator

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// route returns the handler for one session's provider events. Audio goes to
// the player and tool calls to the tool router; everything is republished
// except audio. Handlers run on the provider's read goroutine and must not
// take the lifecycle lock.
func (o *Orchestrator) route(sess *session) voice.Handler {
	return func(e voice.Event) {
		if e.Model == "" {
			e.Model = sess.model.Key
		}

		switch e.Type {
		case voice.EventAudio:
			o.watchdog.Disarm()
			if e.Audio != nil && !sess.ended.Load() {
				o.player.Enqueue(*e.Audio)
				o.metrics.AudioChunk("out")
			}
			return

		case voice.EventToolCall:
			o.watchdog.Disarm()
			if e.ToolCall != nil && !sess.ended.Load() {
				go o.handleToolCall(sess, *e.ToolCall)
			}

		case voice.EventInterrupted:
			o.watchdog.Disarm()
			o.player.Clear()

		case voice.EventSpeechStopped:
			o.watchdog.Arm(sess)

		case voice.EventTranscript:
			if e.Role == voice.RoleUser {
				if e.Final {
					o.watchdog.Arm(sess)
				}
			} else {
				o.watchdog.Disarm()
			}

		case voice.EventResponse, voice.EventTurnComplete:
			o.watchdog.Disarm()

		case voice.EventLatency:
			o.metrics.ObserveResponseLatency(e.Latency)

		case voice.EventError:
			o.metrics.ProviderError(sess.provider.Name(), e.Err)

		case voice.EventDisconnected:
			o.bus.Emit(e)
			o.remoteClosed(sess, e)
			return
		}

		o.bus.Emit(e)
	}
}

// remoteClosed clears sess when the vendor closed it. Local stops have
// already cleared it.
func (o *Orchestrator) remoteClosed(sess *session, e voice.Event) {
	o.mu.Lock()
	if o.sess != sess {
		o.mu.Unlock()
		return
	}
	o.sess = nil
	o.mu.Unlock()

	sess.ended.Store(true)
	sess.cancel()
	sess.unsubscribe()
	o.watchdog.Disarm()
	o.player.Clear()

	o.metrics.SetActive(false)
	o.metrics.SessionEvent("disconnected")
	o.logger.Warn("session closed by vendor",
		"session_id", sess.id,
		"model", sess.model.Key,
		"code", e.Code,
		"reason", e.Reason,
	)
	o.bus.Emit(voice.Event{
		Type:     voice.EventSessionStopped,
		Provider: sess.provider.Name(),
		Model:    sess.model.Key,
		Code:     e.Code,
		Reason:   e.Reason,
	})
}

// stalled runs on the watchdog timer when sess produced no output in time.
// The session is replaced through the normal start path, fallback included.
func (o *Orchestrator) stalled(sess *session) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.current() != sess {
		return
	}

	err := fmt.Errorf("%w: no output from %s for %s", ErrSessionStalled, sess.model.Key, o.watchdog.timeout)
	o.logger.Warn("session stalled, restarting", "session_id", sess.id, "model", sess.model.Key, "timeout", o.watchdog.timeout)
	o.metrics.SessionEvent("stalled")
	o.bus.Emit(voice.Event{
		Type:     voice.EventError,
		Provider: sess.provider.Name(),
		Model:    sess.model.Key,
		Err:      err,
		Error:    err.Error(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()
	if err := o.restart(ctx, "stalled"); err != nil {
		o.logger.Error("restart after stall failed", "error", err)
		o.bus.Emit(voice.ErrorEvent(err))
	}
}
