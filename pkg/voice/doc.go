// Package voice defines the contract every realtime speech-to-speech vendor
// adapter implements, along with the state machine, event bus and session
// metrics the adapters share.
//
// # Providers
//
// Two adapters live in the bundled subpackage:
//
//   - Gemini Live: 16kHz PCM16 in, 24kHz out, API key in the URL
//   - OpenAI Realtime: 24kHz PCM16 both ways, API key in the WebSocket subprotocols
//
// # Usage
//
//	p := bundled.NewGemini(bundled.Options{APIKey: key})
//	if !p.IsConfigured() {
//	    log.Fatal("missing key")
//	}
//
//	unsubscribe := p.Subscribe(func(e voice.Event) {
//	    fmt.Printf("%s: %s\n", e.Type, e.Text)
//	}, voice.EventTranscript, voice.EventResponse)
//	defer unsubscribe()
//
//	if err := p.StartSession(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.EndSession()
//
//	for frame := range microphone {
//	    p.SendAudio(audio.Float32Frame(frame))
//	}
//
// # Status
//
// Every adapter walks the same state machine:
//
//	idle -> connecting -> connected -> listening <-> speaking -> idle
//
// error is reachable from any state, and EndSession always returns to idle.
//
// # Latency
//
// Latency is measured from the last end-of-speech event to the first
// response fragment of the following turn and surfaced both in
// SessionMetrics.LastResponseLatency and as a latency event.
package voice
