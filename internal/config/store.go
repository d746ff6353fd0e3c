package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"media-dubber/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Fields
// absent from an older file keep their default values.
func (s *JSONStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return domain.Settings{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}
	return cfg, nil
}

// Save writes settings as indented JSON through a temp file and rename.
func (s *JSONStore) Save(cfg domain.Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
