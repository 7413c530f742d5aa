package memory

import (
	"context"
	"sync"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// KeySequencer is an in-memory implementation of storage.KeySequencer.
type KeySequencer struct {
	mu       sync.Mutex
	versions map[domain.SeriesKey]uint32
}

// NewKeySequencer creates a new in-memory key sequencer.
func NewKeySequencer() *KeySequencer {
	return &KeySequencer{
		versions: make(map[domain.SeriesKey]uint32),
	}
}

var _ storage.KeySequencer = (*KeySequencer)(nil)

// NextVersion raises the counter to expected and returns it.
func (s *KeySequencer) NextVersion(_ context.Context, key domain.SeriesKey, expected uint32) (uint32, error) {
	if key.EntityKey == "" || !key.MetricKind.IsValid() {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.versions[key]; ok && current > expected {
		return current, nil
	}
	s.versions[key] = expected
	return expected, nil
}

// Current returns the stored counter for key.
func (s *KeySequencer) Current(_ context.Context, key domain.SeriesKey) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.versions[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return current, nil
}
