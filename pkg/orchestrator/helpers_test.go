package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

const waitTimeout = 2 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeFactory builds a fresh voice.Mock per call and records the calls.
type fakeFactory struct {
	mu           sync.Mutex
	calls        []catalog.ProviderID
	mocks        []*voice.Mock
	fail         map[catalog.ProviderID]error
	unconfigured map[catalog.ProviderID]bool
	err          error
}

func newFactory() *fakeFactory {
	return &fakeFactory{
		fail:         map[catalog.ProviderID]error{},
		unconfigured: map[catalog.ProviderID]bool{},
	}
}

func (f *fakeFactory) build(id catalog.ProviderID) (voice.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}

	m := voice.NewMock(string(id))
	if err := f.fail[id]; err != nil {
		m.StartSessionFunc = func(context.Context, voice.SessionConfig) error { return err }
	}
	m.Configured = !f.unconfigured[id]
	f.mocks = append(f.mocks, m)
	return m, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFactory) last() *voice.Mock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.mocks) == 0 {
		return nil
	}
	return f.mocks[len(f.mocks)-1]
}

type fixture struct {
	o       *Orchestrator
	factory *fakeFactory
	store   *catalog.MemoryStore
	sink    *audioio.MockSink
	rec     *recorder
}

// newFixture builds an orchestrator on mocks. mutate may adjust the settings
// and options before New.
func newFixture(t *testing.T, mutate func(s *catalog.Settings, opts *Options)) *fixture {
	t.Helper()

	cat := catalog.Default()
	settings := cat.DefaultSettings()
	f := newFactory()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), quiet)

	reg := tools.NewRegistry(quiet)
	reg.MustRegister(tools.Definition{
		Name:        "lookup_order",
		Description: "Look up an order",
		Parameters: []tools.Parameter{
			{Name: "id", Type: tools.TypeString, Required: true},
		},
		Handler: func(_ context.Context, args map[string]any, _ tools.AppContext) (any, error) {
			return map[string]any{"id": args["id"], "status": "shipped"}, nil
		},
	})

	opts := Options{
		Catalog:     cat,
		Registry:    reg,
		Factory:     f.build,
		Sink:        sink,
		Logger:      quiet,
		ToolTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&settings, &opts)
	}
	store := catalog.NewMemoryStore(settings)
	if opts.Store == nil {
		opts.Store = store
	}

	o, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { o.Close() })

	return &fixture{o: o, factory: f, store: store, sink: sink, rec: record(o)}
}

func (fx *fixture) start(t *testing.T) *voice.Mock {
	t.Helper()
	if err := fx.o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return fx.factory.last()
}

// recorder captures orchestrator events.
type recorder struct {
	ch chan voice.Event
}

func record(o *Orchestrator) *recorder {
	r := &recorder{ch: make(chan voice.Event, 1024)}
	o.Subscribe(func(e voice.Event) {
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

// drain returns the events received so far without waiting.
func (r *recorder) drain() []voice.Event {
	var out []voice.Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func count(events []voice.Event, typ voice.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func toolNames(defs []tools.Definition) map[string]bool {
	out := make(map[string]bool, len(defs))
	for _, d := range defs {
		out[d.Name] = true
	}
	return out
}
