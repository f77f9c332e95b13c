package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// SnapshotStore persists the latest-reading-per-sensor snapshot to a JSON file.
// It implements ingest.Persister.
type SnapshotStore struct {
	path   string
	mu     sync.Mutex
	encode encodeFunc
}

// NewSnapshotStore creates a store writing to path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path, encode: encodeJSON}
}

// Path returns the canonical snapshot location.
func (s *SnapshotStore) Path() string { return s.path }

// Name identifies the sink in logs and metrics.
func (s *SnapshotStore) Name() string { return "file" }

// Persist rewrites the whole snapshot atomically. Concurrent calls are
// serialized; the later call waits rather than failing.
func (s *SnapshotStore) Persist(_ context.Context, readings []domain.Reading) error {
	entries := make([]domain.SnapshotEntry, len(readings))
	for i, r := range readings {
		entries[i] = r.ToSnapshotEntry()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, entries, s.encode); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Load reads the last committed snapshot. A missing file yields an empty slice.
func (s *SnapshotStore) Load() ([]domain.Reading, error) {
	return LoadSnapshot(s.path)
}

// CheckReadiness verifies the snapshot directory is writable.
func (s *SnapshotStore) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return checkWritableDir(s.path)
}

// LoadSnapshot reads a snapshot file written by SnapshotStore.
func LoadSnapshot(path string) ([]domain.Reading, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Reading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var entries []domain.SnapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	readings := make([]domain.Reading, 0, len(entries))
	for _, e := range entries {
		readings = append(readings, e.ToReading())
	}
	return readings, nil
}
