package bundled

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

const (
	testKey     = "test-key-1234567890"
	waitTimeout = 2 * time.Second
)

// fakeVendor is a WebSocket server standing in for a realtime vendor.
type fakeVendor struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	// reply is called for every client message and may answer on the conn.
	reply     func(c *fakeConn, msg map[string]any)
	onConnect func(c *fakeConn)

	conns chan *fakeConn
	reqs  chan *http.Request
	msgs  chan map[string]any
}

type fakeConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *fakeConn) send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(v)
}

func (c *fakeConn) sendRaw(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

func (c *fakeConn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func newFakeVendor(t *testing.T, reply func(c *fakeConn, msg map[string]any)) *fakeVendor {
	t.Helper()
	f := &fakeVendor{
		upgrader: websocket.Upgrader{Subprotocols: []string{"realtime"}},
		reply:    reply,
		conns:    make(chan *fakeConn, 4),
		reqs:     make(chan *http.Request, 4),
		msgs:     make(chan map[string]any, 256),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVendor) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &fakeConn{ws: ws}
	f.reqs <- r
	f.conns <- c
	if f.onConnect != nil {
		f.onConnect(c)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		f.msgs <- msg
		if f.reply != nil {
			f.reply(c, msg)
		}
	}
}

func (f *fakeVendor) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeVendor) conn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no connection")
		return nil
	}
}

func (f *fakeVendor) request(t *testing.T) *http.Request {
	t.Helper()
	select {
	case r := <-f.reqs:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("no request")
		return nil
	}
}

// next returns the next client message that has key at the top level
// ("type" values are matched for OpenAI-style events).
func (f *fakeVendor) next(t *testing.T, key string) map[string]any {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-f.msgs:
			if _, ok := msg[key]; ok {
				return msg
			}
			if msg["type"] == key {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %q message", key)
			return nil
		}
	}
}

// recorder captures provider events.
type recorder struct {
	ch chan voice.Event
}

func record(p voice.Provider) *recorder {
	r := &recorder{ch: make(chan voice.Event, 1024)}
	p.Subscribe(func(e voice.Event) {
		select {
		case r.ch <- e:
		default:
		}
	})
	return r
}

// until returns every event up to and including the first of type typ.
func (r *recorder) until(t *testing.T, typ voice.EventType) []voice.Event {
	t.Helper()
	var seen []voice.Event
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-r.ch:
			seen = append(seen, e)
			if e.Type == typ {
				return seen
			}
		case <-deadline:
			t.Fatalf("no %s event; saw %d others", typ, len(seen))
			return nil
		}
	}
}

func (r *recorder) wait(t *testing.T, typ voice.EventType) voice.Event {
	t.Helper()
	seen := r.until(t, typ)
	return seen[len(seen)-1]
}

func has(events []voice.Event, typ voice.EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func sessionFor(t *testing.T, modelKey string, defs []tools.Definition) voice.SessionConfig {
	t.Helper()
	cat := catalog.Default()
	m, err := cat.Model(modelKey)
	if err != nil {
		t.Fatal(err)
	}
	vad, err := cat.VADPreset(catalog.VADSensitive)
	if err != nil {
		t.Fatal(err)
	}
	return voice.NewSessionConfig(m, cat.ResolveVoice(m, ""), "You are terse.", defs, vad, nil)
}

func testOptions(f *fakeVendor) Options {
	return Options{
		APIKey:       testKey,
		BaseURL:      f.url(),
		SetupTimeout: waitTimeout,
	}
}

// path returns a nested value of a decoded JSON message.
func path(v any, keys ...any) any {
	for _, k := range keys {
		switch key := k.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = m[key]
		case int:
			s, ok := v.([]any)
			if !ok || key >= len(s) {
				return nil
			}
			v = s[key]
		}
	}
	return v
}
