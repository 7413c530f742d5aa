// Package query serves window summaries and raw history from the snapshot store.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
	"ledger-aggregates/internal/window"
)

// DefaultCacheTTL is used when Options.CacheTTL is zero.
const DefaultCacheTTL = 5 * time.Minute

// Service answers read queries. It never writes snapshots.
type Service struct {
	snapshots storage.SnapshotStore
	cache     Cache
	cacheTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Options for creating Service.
type Options struct {
	Snapshots storage.SnapshotStore
	Cache     Cache            // nil disables caching
	CacheTTL  time.Duration    // default: DefaultCacheTTL
	Clock     func() time.Time // default: time.Now
	Logger    *zap.Logger
}

// NewService creates a new Service.
func NewService(opts Options) *Service {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		snapshots: opts.Snapshots,
		cache:     opts.Cache,
		cacheTTL:  ttl,
		now:       clock,
		logger:    logger,
	}
}

// Now returns the current reference time in Unix seconds.
func (s *Service) Now() uint64 {
	return uint64(s.now().Unix())
}

// Summary returns the window summary of key as of ref.
// A zero ref means now. Snapshots with a timestamp after ref are ignored,
// so an explicit ref gives a point-in-time view.
// Returns storage.ErrNotFound if key has no snapshots at all.
func (s *Service) Summary(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, error) {
	if ref == 0 {
		ref = s.Now()
	}

	if cached, ok := s.cacheGet(ctx, key, ref); ok {
		return cached, nil
	}

	// The summary is cached only if no version lands while it is computed.
	version, cacheable := s.latestVersion(ctx, key)

	acc := window.NewAccumulator(ref)
	seen := false
	for snap, err := range s.snapshots.Scan(ctx, key, storage.ScanOptions{}) {
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", key, err)
		}
		seen = true
		if snap.Timestamp > ref {
			break
		}
		acc.Add(snap)
	}
	if !seen {
		return nil, fmt.Errorf("series %s: %w", key, storage.ErrNotFound)
	}

	summary := acc.Summary()
	summary.EntityKey = key.EntityKey
	summary.MetricKind = key.MetricKind

	if cacheable {
		s.cachePut(ctx, summary, version)
	}
	return summary, nil
}

// Summaries returns the summary of every key of kind as of ref.
func (s *Service) Summaries(ctx context.Context, kind domain.MetricKind, ref uint64) ([]*domain.WindowSummary, error) {
	if ref == 0 {
		ref = s.Now()
	}
	keys, err := s.Keys(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.WindowSummary, 0, len(keys))
	for _, key := range keys {
		summary, err := s.Summary(ctx, key, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// History returns the snapshots of key with a timestamp at or after from,
// in version order. Returns storage.ErrNotFound if key is unseen.
func (s *Service) History(ctx context.Context, key domain.SeriesKey, from uint64) ([]*domain.Snapshot, error) {
	history, err := storage.CollectSnapshots(s.snapshots.Scan(ctx, key, storage.ScanOptions{FromTimestamp: from}))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", key, err)
	}
	if len(history) > 0 {
		return history, nil
	}

	// Distinguish an unseen key from a window with no rows.
	if _, err := s.snapshots.Latest(ctx, key); err != nil {
		return nil, fmt.Errorf("series %s: %w", key, err)
	}
	return []*domain.Snapshot{}, nil
}

// Keys lists series of kind; an empty kind lists all.
func (s *Service) Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error) {
	keys, err := s.snapshots.Keys(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// LedgerApplied drops cached summaries of every series the ledger touched.
func (s *Service) LedgerApplied(ctx context.Context, result *aggregation.LedgerResult) {
	if s.cache == nil || len(result.Touched) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, result.Touched...); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.Uint32("ledger", result.Sequence),
			zap.Error(err))
	}
}

func (s *Service) cacheGet(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	summary, ok, err := s.cache.Get(ctx, key, ref)
	if err != nil {
		s.logger.Warn("cache read failed", zap.Stringer("key", key), zap.Error(err))
		return nil, false
	}
	return summary, ok
}

// cachePut stores summary if its series is still at version. The version is
// checked again after the write so an invalidation that ran before the put
// cannot leave a stale entry behind.
func (s *Service) cachePut(ctx context.Context, summary *domain.WindowSummary, version uint32) {
	key := summary.Key()
	if v, ok := s.latestVersion(ctx, key); !ok || v != version {
		return
	}
	if err := s.cache.Put(ctx, summary, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", zap.Stringer("key", key), zap.Error(err))
		return
	}
	if v, ok := s.latestVersion(ctx, key); !ok || v != version {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Stringer("key", key), zap.Error(err))
		}
	}
}

// latestVersion returns the newest version of key. It reports false when
// there is no cache or the version cannot be read.
func (s *Service) latestVersion(ctx context.Context, key domain.SeriesKey) (uint32, bool) {
	if s.cache == nil {
		return 0, false
	}
	latest, err := s.snapshots.Latest(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("latest version read failed", zap.Stringer("key", key), zap.Error(err))
		}
		return 0, false
	}
	return latest.Version, true
}

// IsNotFound reports whether err means the series does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
