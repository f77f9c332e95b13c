package webpush

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/couchcryptid/rainfall-alerts/internal/store"
)

// ErrInvalidSubscription is returned when a subscription is not a JSON object.
var ErrInvalidSubscription = errors.New("subscription must be a JSON object")

// SubscriptionStore keeps browser push subscriptions in a JSON array file.
// Entries are stored as received; the push channel decodes them at send time.
type SubscriptionStore struct {
	path string
	mu   sync.Mutex
}

// NewSubscriptionStore creates a store backed by path.
func NewSubscriptionStore(path string) *SubscriptionStore {
	return &SubscriptionStore{path: path}
}

// Add appends a subscription and rewrites the file atomically.
func (s *SubscriptionStore) Add(sub json.RawMessage) error {
	trimmed := bytes.TrimSpace(sub)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidSubscription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	subs = append(subs, json.RawMessage(trimmed))

	if err := store.WriteJSONAtomic(s.path, subs); err != nil {
		return fmt.Errorf("save subscriptions: %w", err)
	}
	return nil
}

// List reads every stored subscription. A missing file is reported as an
// error wrapping os.ErrNotExist.
func (s *SubscriptionStore) List() ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *SubscriptionStore) read() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	var subs []json.RawMessage
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}
