package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Each series owns a version-ordered log; Latest is the tail of that log.
type SnapshotStore struct {
	mu   sync.RWMutex
	logs map[domain.SeriesKey][]*domain.Snapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		logs: make(map[domain.SeriesKey][]*domain.Snapshot),
	}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Latest returns the highest-version snapshot for key.
func (s *SnapshotStore) Latest(_ context.Context, key domain.SeriesKey) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[key]
	if len(log) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *log[len(log)-1]
	return &cp, nil
}

// Append inserts a snapshot. Returns ErrDuplicateKey if the version exists.
func (s *SnapshotStore) Append(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.EntityKey == "" || !snap.MetricKind.IsValid() {
		return storage.ErrInvalidInput
	}

	key := snap.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]
	i := sort.Search(len(log), func(i int) bool { return log[i].Version >= snap.Version })
	if i < len(log) && log[i].Version == snap.Version {
		return storage.ErrDuplicateKey
	}

	cp := *snap
	log = append(log, nil)
	copy(log[i+1:], log[i:])
	log[i] = &cp
	s.logs[key] = log
	return nil
}

// Scan yields snapshots for key in ascending version order.
// The log is captured when iteration starts.
func (s *SnapshotStore) Scan(_ context.Context, key domain.SeriesKey, opts storage.ScanOptions) iter.Seq2[*domain.Snapshot, error] {
	return func(yield func(*domain.Snapshot, error) bool) {
		s.mu.RLock()
		view := append([]*domain.Snapshot(nil), s.logs[key]...)
		s.mu.RUnlock()

		for _, snap := range view {
			if snap.Timestamp < opts.FromTimestamp {
				continue
			}
			cp := *snap
			if !yield(&cp, nil) {
				return
			}
		}
	}
}

// Keys returns every series with snapshots, sorted by kind then entity.
func (s *SnapshotStore) Keys(_ context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.SeriesKey, 0, len(s.logs))
	for k, log := range s.logs {
		if len(log) == 0 {
			continue
		}
		if kind != "" && k.MetricKind != kind {
			continue
		}
		keys = append(keys, k)
	}
	sortSeriesKeys(keys)
	return keys, nil
}

func sortSeriesKeys(keys []domain.SeriesKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MetricKind != keys[j].MetricKind {
			return keys[i].MetricKind < keys[j].MetricKind
		}
		return keys[i].EntityKey < keys[j].EntityKey
	})
}
