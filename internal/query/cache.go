package query

import (
	"context"
	"time"

	"ledger-aggregates/internal/domain"
)

// Cache stores computed summaries by (series, reference time).
type Cache interface {
	// Get returns the cached summary, or false on a miss.
	Get(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, bool, error)

	// Put stores summary under its key and reference time.
	Put(ctx context.Context, summary *domain.WindowSummary, ttl time.Duration) error

	// Invalidate removes every cached summary of keys.
	Invalidate(ctx context.Context, keys ...domain.SeriesKey) error
}
