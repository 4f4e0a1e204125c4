package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const pointerFile = "last_request.json"

// pointer is the on-disk shape of the last started request.
type pointer struct {
	RequestID string    `json:"requestId"`
	SavedAt   time.Time `json:"savedAt"`
}

// PointerStore provides file-based storage for the id of the last request a
// client started. It survives process restarts and is shared by every user
// of the state directory, so readers must check ownership themselves.
type PointerStore struct {
	basePath string
}

// NewPointerStore creates a new PointerStore and ensures the base directory exists.
func NewPointerStore(basePath string) (*PointerStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &PointerStore{basePath: basePath}, nil
}

func (s *PointerStore) path() string {
	return filepath.Join(s.basePath, pointerFile)
}

// Get returns the stored request id, or "" when none is stored.
func (s *PointerStore) Get() (string, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pointer file: %w", err)
	}

	var p pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal pointer: %w", err)
	}
	return p.RequestID, nil
}

// Set replaces the stored request id. The file is renamed into place so a
// crash never leaves a truncated pointer behind.
func (s *PointerStore) Set(requestID string) error {
	data, err := json.MarshalIndent(pointer{RequestID: requestID, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pointer: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write pointer file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("failed to replace pointer file: %w", err)
	}
	return nil
}

// Clear removes the stored request id. Clearing an empty store is not an error.
func (s *PointerStore) Clear() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pointer file: %w", err)
	}
	return nil
}
