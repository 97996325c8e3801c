package bundled

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

const (
	closeWriteWait = time.Second
	closeWait      = 2 * time.Second
)

// socket is one vendor connection. The read loop owns reads; writes go
// through writeJSON under wsMu.
type socket struct {
	ws   *websocket.Conn
	wsMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	done  chan struct{}
	local atomic.Bool
}

func newSocket(ws *websocket.Conn) *socket {
	return &socket{
		ws:    ws,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// markReady delivers the setup outcome. Only the first call has an effect;
// it reports whether this call was the one that delivered.
func (s *socket) markReady(err error) bool {
	delivered := false
	s.readyOnce.Do(func() {
		s.readyErr = err
		close(s.ready)
		delivered = true
	})
	return delivered
}

func (s *socket) writeJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.ws.WriteJSON(v)
}

// shutdown closes the connection from our side and waits for the read loop
// to exit.
func (s *socket) shutdown() {
	s.local.Store(true)

	s.wsMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	s.wsMu.Unlock()

	_ = s.ws.Close()

	select {
	case <-s.done:
	case <-time.After(closeWait):
	}
}

// dialTarget is where and how an adapter connects.
type dialTarget struct {
	url          string
	header       http.Header
	subprotocols []string
}

// base implements the session lifecycle shared by the adapters. Vendor
// specifics enter through dispatch, which handles one inbound message.
type base struct {
	*voice.Core

	provider catalog.ProviderID
	opts     Options
	dispatch func(s *socket, data []byte)

	mu     sync.Mutex
	active bool
	sock   *socket
	cfg    voice.SessionConfig
}

func newBase(provider catalog.ProviderID, opts Options) *base {
	opts = opts.withDefaults(provider)
	return &base{
		Core:     voice.NewCore(string(provider), opts.Logger),
		provider: provider,
		opts:     opts,
	}
}

// IsConfigured implements voice.Provider.
func (b *base) IsConfigured() bool {
	return voice.IsUsableKey(b.opts.APIKey)
}

// SupportedModels implements voice.Provider.
func (b *base) SupportedModels() []catalog.ModelDefinition {
	return b.opts.Catalog.ModelsFor(b.provider)
}

// SupportedVoices implements voice.Provider.
func (b *base) SupportedVoices() []catalog.Voice {
	return b.opts.Catalog.Voices(b.provider)
}

// Capabilities implements voice.Provider. Without a session it reports the
// provider's default model.
func (b *base) Capabilities() catalog.ModelCapabilities {
	b.mu.Lock()
	active, caps := b.active, b.cfg.Capabilities
	b.mu.Unlock()
	if active {
		return caps
	}
	p, err := b.opts.Catalog.Provider(b.provider)
	if err != nil {
		return catalog.ModelCapabilities{}
	}
	m, err := b.opts.Catalog.Model(p.DefaultModel)
	if err != nil {
		return catalog.ModelCapabilities{}
	}
	return m.Capabilities
}

// EndSession implements voice.Provider.
func (b *base) EndSession() error {
	b.mu.Lock()
	sock := b.sock
	wasActive := b.active
	b.sock = nil
	b.active = false
	b.mu.Unlock()

	if sock != nil {
		sock.shutdown()
	}
	if wasActive && b.Status() != voice.StatusIdle {
		b.SetStatus(voice.StatusIdle)
		b.Emit(voice.Event{Type: voice.EventDisconnected, Code: websocket.CloseNormalClosure, Reason: "session ended"})
		b.Logger().Info("session ended")
	}
	return nil
}

func (b *base) config() voice.SessionConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

func (b *base) current() *socket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sock
}

// start dials target, sends setup and waits for the vendor to acknowledge it.
func (b *base) start(ctx context.Context, cfg voice.SessionConfig, target dialTarget, setup any) error {
	if !b.IsConfigured() {
		return fmt.Errorf("%s: %w", b.Name(), voice.ErrMissingAPIKey)
	}

	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	b.active = true
	b.cfg = cfg
	b.mu.Unlock()

	b.Collector().StartSession()
	b.SetStatus(voice.StatusConnecting)
	b.Logger().Info("connecting", "model", cfg.Model, "voice", cfg.Voice, "tools", len(cfg.Tools))

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: b.opts.HandshakeTimeout,
		Subprotocols:     target.subprotocols,
	}
	ws, resp, err := dialer.DialContext(ctx, target.url, target.header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		retryable := status == 0 || status == http.StatusTooManyRequests || status >= 500
		reason := "dial failed"
		if status != 0 {
			reason = fmt.Sprintf("dial failed: HTTP %d", status)
		}
		return b.fail(voice.NewConnectionError(b.Name(), reason, errors.Join(voice.ErrConnectionFailed, err), retryable))
	}

	sock := newSocket(ws)
	b.mu.Lock()
	if !b.active {
		// EndSession raced the dial.
		b.mu.Unlock()
		_ = ws.Close()
		return voice.ErrConnectionClosed
	}
	b.sock = sock
	b.mu.Unlock()

	go b.readLoop(sock)

	if err := sock.writeJSON(setup); err != nil {
		b.detach(sock)
		return b.fail(fmt.Errorf("%w: %v", voice.ErrSendFailed, err))
	}

	timer := time.NewTimer(b.opts.SetupTimeout)
	defer timer.Stop()

	var setupErr error
	select {
	case <-sock.ready:
		setupErr = sock.readyErr
	case <-ctx.Done():
		setupErr = ctx.Err()
	case <-timer.C:
		setupErr = voice.ErrSetupTimeout
	}
	if setupErr != nil {
		b.mu.Lock()
		ended := !b.active || b.sock != sock
		b.mu.Unlock()
		b.detach(sock)
		if ended {
			// EndSession raced the setup; it already reported the session.
			return voice.ErrConnectionClosed
		}
		return b.fail(setupErr)
	}

	b.Collector().MarkConnected()
	b.SetStatus(voice.StatusConnected)
	b.Emit(voice.Event{Type: voice.EventConnected, Model: cfg.ModelKey})
	b.Logger().Info("session ready", "model", cfg.Model, "connect_time", b.Metrics().ConnectionTime)
	return nil
}

// detach shuts sock down and forgets it.
func (b *base) detach(sock *socket) {
	sock.markReady(voice.ErrConnectionClosed)
	sock.shutdown()
	b.mu.Lock()
	if b.sock == sock {
		b.sock = nil
	}
	b.mu.Unlock()
}

// fail reports a session start failure and returns to idle.
func (b *base) fail(err error) error {
	b.mu.Lock()
	b.active = false
	b.sock = nil
	b.mu.Unlock()

	b.Logger().Warn("session start failed", "error", err)
	b.EmitError(err)
	b.SetStatus(voice.StatusError)
	b.SetStatus(voice.StatusIdle)
	return err
}

func (b *base) readLoop(sock *socket) {
	var readErr error
	defer func() { b.closed(sock, readErr) }()

	for {
		_, data, err := sock.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		b.handle(sock, data)
	}
}

// handle dispatches one message. A panicking handler costs the message, not
// the session.
func (b *base) handle(sock *socket, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("message handler panic", "panic", r)
			b.invalid(fmt.Errorf("handler panic: %v", r))
		}
	}()
	b.dispatch(sock, data)
}

// closed runs when the read loop exits.
func (b *base) closed(sock *socket, err error) {
	code, reason := closeDetails(err)

	delivered := sock.markReady(voice.NewConnectionError(b.Name(),
		fmt.Sprintf("closed before setup completed (%d %s)", code, reason), voice.ErrConnectionClosed, code != websocket.ClosePolicyViolation))
	close(sock.done)

	if delivered || sock.local.Load() {
		return
	}

	b.mu.Lock()
	if b.sock != sock {
		b.mu.Unlock()
		return
	}
	b.sock = nil
	b.active = false
	b.mu.Unlock()

	b.Logger().Warn("connection closed by vendor", "code", code, "reason", reason)
	if code != websocket.CloseNormalClosure {
		b.EmitError(voice.NewConnectionError(b.Name(), reason, errors.Join(voice.ErrConnectionClosed, err), true))
		b.SetStatus(voice.StatusError)
	}
	b.Emit(voice.Event{Type: voice.EventDisconnected, Code: code, Reason: reason})
	b.SetStatus(voice.StatusIdle)
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if err == nil {
		return websocket.CloseAbnormalClosure, "connection lost"
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// ready marks the session acknowledged and emits setup_complete once.
func (b *base) ready(sock *socket) {
	if sock.markReady(nil) {
		b.Emit(voice.Event{Type: voice.EventSetupComplete})
	}
}

// send writes a message on the open session.
func (b *base) send(v any) error {
	sock := b.current()
	if sock == nil {
		return voice.ErrNotConnected
	}
	if err := sock.writeJSON(v); err != nil {
		return fmt.Errorf("%w: %v", voice.ErrSendFailed, err)
	}
	return nil
}

// sendAudio resamples frame to the session input rate when it carries its
// own rate, then sends the message built from the base64 payload.
func (b *base) sendAudio(frame audio.Frame, build func(data string, rate int) any) {
	if frame == nil || !b.Status().Active() {
		return
	}
	sock := b.current()
	if sock == nil {
		return
	}

	rate := b.config().InputSampleRate
	samples := frame.PCM16()
	if rf, ok := frame.(audio.RatedFrame); ok && rf.Rate() > 0 && rate > 0 && rf.Rate() != rate {
		samples = audio.Resample(samples, rf.Rate(), rate)
	}
	if len(samples) == 0 {
		return
	}

	if err := sock.writeJSON(build(audio.EncodePCM16Base64(samples), rate)); err != nil {
		b.Logger().Debug("audio send failed", "error", err)
		return
	}
	b.Collector().IncrementAudioSent()
	if b.Status() == voice.StatusConnected {
		b.SetStatus(voice.StatusListening)
	}
}

// sendToolResponse sends msg when a session is open and warns otherwise.
func (b *base) sendToolResponse(resp tools.Response, msg any) {
	if !b.Status().Active() {
		b.Logger().Warn("tool response dropped, session not open", "call_id", resp.ID, "tool", resp.Name)
		return
	}
	if err := b.send(msg); err != nil {
		b.EmitError(err)
		return
	}
	b.Logger().Debug("tool response sent", "call_id", resp.ID, "tool", resp.Name, "success", resp.Result.Success)
}

// emitAudio decodes a base64 PCM16 fragment and publishes it.
func (b *base) emitAudio(data string, rate int) {
	samples, err := audio.DecodePCM16Base64(data)
	if err != nil {
		b.invalid(err)
		return
	}
	if len(samples) == 0 {
		return
	}
	if rate <= 0 {
		rate = b.config().OutputSampleRate
	}
	b.MarkResponseStart()
	b.SetStatus(voice.StatusSpeaking)
	b.Collector().IncrementAudioReceived()
	b.Emit(voice.AudioOut(samples, rate))
}

// emitText publishes an assistant text fragment.
func (b *base) emitText(text string, final bool) {
	if text == "" {
		return
	}
	b.MarkResponseStart()
	b.Emit(voice.Response(text, final))
}

// emitToolCall publishes a tool call, generating an id when the vendor sent none.
func (b *base) emitToolCall(id, name string, args map[string]any) {
	if id == "" {
		id = uuid.NewString()
	}
	if args == nil {
		args = map[string]any{}
	}
	b.Collector().IncrementToolCalls()
	b.Logger().Info("tool call", "tool", name, "call_id", id)
	b.Emit(voice.ToolCallEvent(tools.Call{ID: id, Name: name, Arguments: args, Timestamp: time.Now()}))
}

// turnComplete closes an assistant turn.
func (b *base) turnComplete() {
	b.Collector().IncrementTurns()
	b.SetStatus(voice.StatusListening)
	b.Emit(voice.Event{Type: voice.EventTurnComplete})
}

// invalid reports a message that could not be processed.
func (b *base) invalid(err error) {
	b.EmitError(fmt.Errorf("%w: %v", voice.ErrInvalidMessage, err))
}
