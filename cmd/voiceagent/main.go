// voiceagent serves a realtime voice agent over HTTP and WebSocket, with
// vendor fallback between Gemini Live and the OpenAI Realtime API.
package main

func main() {
	Execute()
}
