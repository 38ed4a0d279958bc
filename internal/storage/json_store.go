package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore persists a single JSON snapshot on disk. The in-memory document
// store uses it so a local admin console survives restarts without a database.
type JSONStore struct {
	mu       sync.RWMutex
	filePath string
}

func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("json store: data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("json store: create %s: %w", dataDir, err)
	}
	return &JSONStore{filePath: filepath.Join(dataDir, filename)}, nil
}

// Load decodes the snapshot into v. A missing file leaves v untouched.
func (s *JSONStore) Load(v interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Save replaces the snapshot via write-then-rename so readers never see a partial file.
func (s *JSONStore) Save(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json store: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.filePath)
}
