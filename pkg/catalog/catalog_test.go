package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	if _, err := c.Model(c.DefaultModel()); err != nil {
		t.Fatalf("default model missing: %v", err)
	}

	for _, key := range c.FallbackChain() {
		if _, err := c.Model(key); err != nil {
			t.Errorf("fallback entry %s missing: %v", key, err)
		}
	}

	for _, m := range c.Models() {
		p, err := c.Provider(m.Provider)
		if err != nil {
			t.Errorf("model %s has unknown provider %s", m.Key, m.Provider)
			continue
		}
		if !c.HasVoice(p.ID, p.DefaultVoice) {
			t.Errorf("provider %s default voice %s not in voice list", p.ID, p.DefaultVoice)
		}
	}
}

func TestModelSampleRates(t *testing.T) {
	c := Default()

	gemini, _ := c.Model(ModelGeminiFlashLive)
	if gemini.InputSampleRate != 16000 || gemini.OutputSampleRate != 24000 {
		t.Errorf("gemini rates: %d/%d", gemini.InputSampleRate, gemini.OutputSampleRate)
	}

	gpt, _ := c.Model(ModelGPT4oRealtime)
	if gpt.InputSampleRate != 24000 || gpt.OutputSampleRate != 24000 {
		t.Errorf("openai rates: %d/%d", gpt.InputSampleRate, gpt.OutputSampleRate)
	}
}

func TestLookupErrors(t *testing.T) {
	c := Default()

	if _, err := c.Model("unknown-key"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := c.Provider("azure"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := c.VADPreset("loud"); !errors.Is(err, ErrUnknownVADPreset) {
		t.Errorf("expected ErrUnknownVADPreset, got %v", err)
	}
}

func TestModelsFor(t *testing.T) {
	c := Default()
	for _, m := range c.ModelsFor(ProviderOpenAI) {
		if m.Provider != ProviderOpenAI {
			t.Errorf("model %s is not openai", m.Key)
		}
	}
	if len(c.ModelsFor(ProviderGemini)) == 0 {
		t.Error("expected gemini models")
	}
}

func TestResolveVoice(t *testing.T) {
	c := Default()
	gpt, _ := c.Model(ModelGPT4oRealtime)

	if got := c.ResolveVoice(gpt, "coral"); got != "coral" {
		t.Errorf("expected coral, got %s", got)
	}
	// Gemini voice on an OpenAI model falls back to the provider default
	if got := c.ResolveVoice(gpt, "Puck"); got != "alloy" {
		t.Errorf("expected alloy, got %s", got)
	}
}

func TestSettingsApply(t *testing.T) {
	c := Default()
	base := c.DefaultSettings()

	voice := "Kore"
	chain := []string{ModelGPTRealtime}
	patched := base.Apply(SettingsPatch{Voice: &voice, FallbackChain: &chain})

	if patched.Voice != "Kore" || patched.Model != base.Model {
		t.Errorf("unexpected patch result %+v", patched)
	}
	if !patched.RequiresRestart(base) {
		t.Error("voice change should require restart")
	}

	chain[0] = "mutated"
	if patched.FallbackChain[0] != ModelGPTRealtime {
		t.Error("patch aliased caller slice")
	}

	enabled := false
	off := base.Apply(SettingsPatch{FallbackEnabled: &enabled})
	if off.RequiresRestart(base) {
		t.Error("fallback toggle should not require restart")
	}
}

func TestValidate(t *testing.T) {
	c := Default()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"defaults", func(s *Settings) {}, nil},
		{"unknown model", func(s *Settings) { s.Model = "unknown-key" }, ErrUnknownModel},
		{"wrong vendor voice", func(s *Settings) { s.Voice = "alloy" }, ErrUnknownVoice},
		{"unknown preset", func(s *Settings) { s.VADPreset = "loud" }, ErrUnknownVADPreset},
		{"bad chain", func(s *Settings) { s.FallbackChain = []string{"nope"} }, ErrUnknownModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := c.DefaultSettings()
			tt.mutate(&s)
			err := c.Validate(s)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChain(t *testing.T) {
	c := Default()
	s := c.DefaultSettings()

	if len(c.Chain(s)) != len(c.FallbackChain()) {
		t.Error("expected catalogue chain without override")
	}

	s.FallbackChain = []string{ModelGPTRealtime}
	if got := c.Chain(s); len(got) != 1 || got[0] != ModelGPTRealtime {
		t.Errorf("expected override, got %v", got)
	}
}

func TestFileStore(t *testing.T) {
	c := Default()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := NewFileStore(path, c.DefaultSettings())

	t.Run("missing file yields defaults", func(t *testing.T) {
		s, err := store.Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if s.Model != c.DefaultModel() || !s.FallbackEnabled {
			t.Errorf("expected defaults, got %+v", s)
		}
	})

	t.Run("save and reload", func(t *testing.T) {
		s := c.DefaultSettings()
		s.Model = ModelGPT4oRealtime
		s.Voice = "sage"
		if err := store.Save(s); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got.Model != ModelGPT4oRealtime || got.Voice != "sage" {
			t.Errorf("unexpected settings %+v", got)
		}
	})

	t.Run("partial file merges over defaults", func(t *testing.T) {
		if err := os.WriteFile(path, []byte(`{"voice":"Kore"}`), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got.Voice != "Kore" || got.Model != c.DefaultModel() || got.VADPreset != VADDefault {
			t.Errorf("merge failed: %+v", got)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := store.Load()
		if err == nil {
			t.Error("expected parse error")
		}
		if got.Model != c.DefaultModel() {
			t.Errorf("expected defaults on error, got %+v", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	c := Default()
	store := NewMemoryStore(c.DefaultSettings())

	s, _ := store.Load()
	s.Voice = "Aoede"
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Load()
	if got.Voice != "Aoede" {
		t.Errorf("expected Aoede, got %s", got.Voice)
	}

	store.SaveErr = errors.New("read-only")
	if err := store.Save(s); err == nil {
		t.Error("expected save error")
	}
}
