// Package config loads the deployment configuration of the voiceagent
// binary: a TOML file with environment overrides. User-facing session
// settings (model, voice, prompt) live in the catalog settings store instead.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VOICEAGENT_"

// Config is the deployment configuration.
type Config struct {
	Server    ServerConfig              `toml:"server"`
	Logging   LoggingConfig             `toml:"logging"`
	Agent     AgentConfig               `toml:"agent"`
	Speaker   audioio.Config            `toml:"speaker"`
	Mic       audioio.Config            `toml:"mic"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// ServerConfig configures the HTTP/WebSocket surface.
type ServerConfig struct {
	Listen       string `toml:"listen"`
	AllowOrigins string `toml:"allow_origins"`

	// BrowserAudio sends assistant audio to /ws/audio clients instead of
	// the local speaker.
	BrowserAudio bool `toml:"browser_audio"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// AgentConfig configures the orchestrator.
type AgentConfig struct {
	// SettingsPath is the JSON settings store.
	SettingsPath string `toml:"settings_path"`

	// Autostart opens a session when the server starts.
	Autostart bool `toml:"autostart"`

	WatchdogTimeout time.Duration `toml:"watchdog_timeout"`
	ToolTimeout     time.Duration `toml:"tool_timeout"`
	SetupTimeout    time.Duration `toml:"setup_timeout"`
}

// ProviderConfig overrides a vendor's key or endpoint.
type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	mic := audioio.DefaultConfig()
	mic.Backend = audioio.BackendNone
	mic.SampleRate = 16000

	return Config{
		Server: ServerConfig{
			Listen:       ":8080",
			AllowOrigins: "*",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Agent: AgentConfig{
			SettingsPath:    catalog.DefaultSettingsPath(),
			WatchdogTimeout: 20 * time.Second,
			ToolTimeout:     30 * time.Second,
			SetupTimeout:    15 * time.Second,
		},
		Speaker:   audioio.DefaultConfig(),
		Mic:       mic,
		Providers: map[string]ProviderConfig{},
	}
}

// DefaultPath returns $VOICEAGENT_CONFIG, ./voiceagent.toml when present,
// or ~/.voiceagent/config.toml.
func DefaultPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("voiceagent.toml"); err == nil {
		return "voiceagent.toml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "voiceagent.toml"
	}
	return filepath.Join(home, ".voiceagent", "config.toml")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error. An empty path means
// DefaultPath().
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg as TOML to path, creating the directory.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// applyEnv overrides cfg from the environment.
func applyEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&cfg.Server.Listen, EnvPrefix+"LISTEN")
	setString(&cfg.Logging.Level, EnvPrefix+"LOG_LEVEL", "LOG_LEVEL")
	setString(&cfg.Logging.Format, EnvPrefix+"LOG_FORMAT", "LOG_FORMAT")
	setString(&cfg.Agent.SettingsPath, EnvPrefix+"SETTINGS")

	var speaker, mic string
	setString(&speaker, EnvPrefix+"SPEAKER")
	setString(&mic, EnvPrefix+"MIC")
	if speaker != "" {
		cfg.Speaker.Backend = audioio.Backend(speaker)
	}
	if mic != "" {
		cfg.Mic.Backend = audioio.Backend(mic)
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for _, id := range []catalog.ProviderID{catalog.ProviderGemini, catalog.ProviderOpenAI} {
		name := strings.ToUpper(string(id))
		p := cfg.Providers[string(id)]
		setString(&p.APIKey, EnvPrefix+name+"_API_KEY")
		setString(&p.BaseURL, EnvPrefix+name+"_BASE_URL", name+"_BASE_URL")
		if p != (ProviderConfig{}) {
			cfg.Providers[string(id)] = p
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: invalid level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: invalid format %q", c.Logging.Format))
	}

	if c.Agent.WatchdogTimeout < 0 {
		errs = append(errs, errors.New("agent.watchdog_timeout must not be negative"))
	}
	if c.Agent.ToolTimeout < 0 || c.Agent.SetupTimeout < 0 {
		errs = append(errs, errors.New("agent timeouts must not be negative"))
	}

	if err := c.Speaker.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("speaker: %w", err))
	}
	if err := c.Mic.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mic: %w", err))
	}

	cat := catalog.Default()
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := cat.Provider(catalog.ProviderID(name)); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Credentials merges the configured keys over the keys found in the
// environment variables the catalogue names.
func (c *Config) Credentials(cat *catalog.Catalog) voice.Credentials {
	creds := voice.CredentialsFromEnv(cat)
	for name, p := range c.Providers {
		if p.APIKey != "" {
			creds[catalog.ProviderID(name)] = p.APIKey
		}
	}
	return creds
}

// BaseURL returns the configured endpoint override for id, or "".
func (c *Config) BaseURL(id catalog.ProviderID) string {
	return c.Providers[string(id)].BaseURL
}
