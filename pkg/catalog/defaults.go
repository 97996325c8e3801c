package catalog

// Model keys.
const (
	ModelGeminiFlashLive   = "gemini-2.0-flash-live"
	ModelGeminiNativeAudio = "gemini-2.5-flash-native-audio"
	ModelGeminiFlashExp    = "gemini-2.0-flash-exp"
	ModelGPT4oRealtime     = "gpt-4o-realtime"
	ModelGPT4oMiniRealtime = "gpt-4o-mini-realtime"
	ModelGPTRealtime       = "gpt-realtime"
)

// VAD preset names.
const (
	VADDefault   = "default"
	VADSensitive = "sensitive"
	VADPatient   = "patient"
	VADNoisy     = "noisy"
)

// Endpoints.
const (
	GeminiLiveURL     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	OpenAIRealtimeURL = "wss://api.openai.com/v1/realtime"
)

// Default returns the built-in catalogue.
func Default() *Catalog {
	c := &Catalog{
		models:    make(map[string]ModelDefinition),
		providers: make(map[ProviderID]ProviderSettings),
		voices:    make(map[ProviderID][]Voice),
		vadPresets: map[string]VADConfig{
			VADDefault: {
				StartSensitivity: "high", EndSensitivity: "high",
				Threshold: 0.5, PrefixPaddingMs: 300, SilenceDurationMs: 500,
			},
			VADSensitive: {
				StartSensitivity: "high", EndSensitivity: "high",
				Threshold: 0.3, PrefixPaddingMs: 200, SilenceDurationMs: 300,
			},
			VADPatient: {
				StartSensitivity: "low", EndSensitivity: "low",
				Threshold: 0.5, PrefixPaddingMs: 300, SilenceDurationMs: 1200,
			},
			VADNoisy: {
				StartSensitivity: "low", EndSensitivity: "high",
				Threshold: 0.8, PrefixPaddingMs: 400, SilenceDurationMs: 700,
			},
		},
		defaultModel: ModelGeminiFlashLive,
		fallbackChain: []string{
			ModelGPT4oRealtime,
			ModelGeminiNativeAudio,
			ModelGPT4oMiniRealtime,
		},
	}

	geminiCaps := ModelCapabilities{Realtime: true, VideoInput: true, ToolCalling: true, Interruption: true}
	openaiCaps := ModelCapabilities{Realtime: true, ToolCalling: true, Interruption: true, NativeAudio: true}

	for _, m := range []ModelDefinition{
		{
			Key: ModelGeminiFlashLive, Provider: ProviderGemini,
			VendorID: "models/gemini-2.0-flash-live-001", Name: "Gemini 2.0 Flash Live",
			Capabilities:    geminiCaps,
			InputSampleRate: 16000, OutputSampleRate: 24000,
			TypicalLatencyMs: 600, BestLatencyMs: 300,
			Status: StatusStable,
		},
		{
			Key: ModelGeminiNativeAudio, Provider: ProviderGemini,
			VendorID: "models/gemini-2.5-flash-native-audio-preview-09-2025", Name: "Gemini 2.5 Flash Native Audio",
			Capabilities: ModelCapabilities{
				Realtime: true, VideoInput: true, ToolCalling: true, Interruption: true, NativeAudio: true,
			},
			InputSampleRate: 16000, OutputSampleRate: 24000,
			TypicalLatencyMs: 500, BestLatencyMs: 250,
			Status: StatusPreview,
		},
		{
			Key: ModelGeminiFlashExp, Provider: ProviderGemini,
			VendorID: "models/gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash (experimental)",
			Capabilities:    geminiCaps,
			InputSampleRate: 16000, OutputSampleRate: 24000,
			TypicalLatencyMs: 700, BestLatencyMs: 350,
			Status: StatusDeprecated, DeprecationDate: "2025-12-09",
		},
		{
			Key: ModelGPT4oRealtime, Provider: ProviderOpenAI,
			VendorID: "gpt-4o-realtime-preview-2024-12-17", Name: "GPT-4o Realtime",
			Capabilities:    openaiCaps,
			InputSampleRate: 24000, OutputSampleRate: 24000,
			TypicalLatencyMs: 800, BestLatencyMs: 400,
			Status: StatusStable,
		},
		{
			Key: ModelGPT4oMiniRealtime, Provider: ProviderOpenAI,
			VendorID: "gpt-4o-mini-realtime-preview-2024-12-17", Name: "GPT-4o mini Realtime",
			Capabilities:    openaiCaps,
			InputSampleRate: 24000, OutputSampleRate: 24000,
			TypicalLatencyMs: 600, BestLatencyMs: 300,
			Status: StatusStable,
		},
		{
			Key: ModelGPTRealtime, Provider: ProviderOpenAI,
			VendorID: "gpt-realtime", Name: "GPT Realtime",
			Capabilities:    openaiCaps,
			InputSampleRate: 24000, OutputSampleRate: 24000,
			TypicalLatencyMs: 700, BestLatencyMs: 350,
			Status: StatusPreview,
		},
	} {
		c.models[m.Key] = m
		c.modelOrder = append(c.modelOrder, m.Key)
	}

	c.providers[ProviderGemini] = ProviderSettings{
		ID:               ProviderGemini,
		Name:             "Google Gemini Live",
		URL:              GeminiLiveURL,
		APIKeyEnv:        []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		DefaultModel:     ModelGeminiFlashLive,
		DefaultVoice:     "Puck",
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
	}
	c.providers[ProviderOpenAI] = ProviderSettings{
		ID:               ProviderOpenAI,
		Name:             "OpenAI Realtime",
		URL:              OpenAIRealtimeURL,
		APIKeyEnv:        []string{"OPENAI_API_KEY"},
		DefaultModel:     ModelGPT4oRealtime,
		DefaultVoice:     "alloy",
		InputSampleRate:  24000,
		OutputSampleRate: 24000,
	}

	c.voices[ProviderGemini] = []Voice{
		{ID: "Puck", Name: "Puck", Gender: "male"},
		{ID: "Charon", Name: "Charon", Gender: "male"},
		{ID: "Kore", Name: "Kore", Gender: "female"},
		{ID: "Fenrir", Name: "Fenrir", Gender: "male"},
		{ID: "Aoede", Name: "Aoede", Gender: "female"},
		{ID: "Leda", Name: "Leda", Gender: "female"},
		{ID: "Orus", Name: "Orus", Gender: "male"},
		{ID: "Zephyr", Name: "Zephyr", Gender: "female"},
	}
	c.voices[ProviderOpenAI] = []Voice{
		{ID: "alloy", Name: "Alloy"},
		{ID: "ash", Name: "Ash"},
		{ID: "ballad", Name: "Ballad"},
		{ID: "coral", Name: "Coral"},
		{ID: "echo", Name: "Echo"},
		{ID: "sage", Name: "Sage"},
		{ID: "shimmer", Name: "Shimmer"},
		{ID: "verse", Name: "Verse"},
	}

	return c
}
