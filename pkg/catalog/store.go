package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists Settings.
type Store interface {
	// Load returns the persisted settings merged over defaults.
	Load() (Settings, error)

	// Save replaces the persisted settings.
	Save(s Settings) error
}

// DefaultSettingsPath returns ~/.voiceagent/settings.json.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".voiceagent", "settings.json")
	}
	return filepath.Join(home, ".voiceagent", "settings.json")
}

// FileStore keeps settings in a JSON file.
type FileStore struct {
	path     string
	defaults Settings
	mu       sync.Mutex
}

// NewFileStore creates a store at path. An empty path uses DefaultSettingsPath.
func NewFileStore(path string, defaults Settings) *FileStore {
	if path == "" {
		path = DefaultSettingsPath()
	}
	return &FileStore{path: path, defaults: defaults}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the file and merges it over defaults. A missing file yields the
// defaults. A corrupt file yields the defaults and an error.
func (s *FileStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.defaults.Apply(SettingsPatch{})

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("catalog: read settings: %w", err)
	}

	// Decoding into a pre-filled struct keeps defaults for absent keys.
	merged := cfg
	if err := json.Unmarshal(data, &merged); err != nil {
		return cfg, fmt.Errorf("catalog: parse settings %s: %w", s.path, err)
	}
	return merged, nil
}

// Save writes the settings atomically.
func (s *FileStore) Save(cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("catalog: create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("catalog: write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("catalog: write settings: %w", err)
	}
	return nil
}

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu       sync.Mutex
	settings Settings
	saved    bool
	defaults Settings

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMemoryStore creates a store that starts at defaults.
func NewMemoryStore(defaults Settings) *MemoryStore {
	return &MemoryStore{defaults: defaults}
}

// Load implements Store.
func (m *MemoryStore) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return m.defaults.Apply(SettingsPatch{}), nil
	}
	return m.settings.Apply(SettingsPatch{}), nil
}

// Save implements Store.
func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.settings = s.Apply(SettingsPatch{})
	m.saved = true
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
