package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/observability"
	"ledger-aggregates/internal/storage"
)

// LedgerApplier runs one ledger-close invocation.
type LedgerApplier interface {
	ApplyLedger(ctx context.Context, ledger *domain.Ledger) (*aggregation.LedgerResult, error)
}

// LedgerListener is notified after a ledger has been applied and recorded.
type LedgerListener interface {
	LedgerApplied(ctx context.Context, result *aggregation.LedgerResult)
}

// ListenerFunc adapts a function to LedgerListener.
type ListenerFunc func(ctx context.Context, result *aggregation.LedgerResult)

// LedgerApplied calls f.
func (f ListenerFunc) LedgerApplied(ctx context.Context, result *aggregation.LedgerResult) {
	f(ctx, result)
}

// Runner drives ledgers from a source through the engine.
type Runner struct {
	source     LedgerSource
	normalizer *Normalizer
	engine     LedgerApplier
	cursor     storage.LedgerCursorStore
	listeners  []LedgerListener
	logger     *zap.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source     LedgerSource
	Normalizer *Normalizer // default: NewNormalizer()
	Engine     LedgerApplier
	Cursor     storage.LedgerCursorStore // nil disables resume and skip
	Listeners  []LedgerListener
	Logger     *zap.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		source:     opts.Source,
		normalizer: normalizer,
		engine:     opts.Engine,
		cursor:     opts.Cursor,
		listeners:  opts.Listeners,
		logger:     logger,
	}
}

// RunStats counts what a run did.
type RunStats struct {
	Ledgers        int // ledgers applied
	LedgersSkipped int // ledgers at or below the stored cursor
	EventsApplied  int
	EventsSkipped  int
	EventsReplayed int // events already written by an earlier failed run
	Snapshots      int
	LastLedger     uint32
}

// Run applies ledgers until the source is exhausted, ctx is cancelled or a
// ledger fails. A finite source ends with a nil error.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	last, err := r.lastLedger(ctx)
	if err != nil {
		return stats, err
	}
	if last != nil {
		stats.LastLedger = last.Sequence
		r.logger.Info("resuming after ledger", zap.Uint32("ledger", last.Sequence))
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, fmt.Errorf("next ledger: %w", err)
		}

		if last != nil && batch.Sequence <= last.Sequence {
			r.logger.Debug("ledger already applied", zap.Uint32("ledger", batch.Sequence))
			stats.LedgersSkipped++
			if err := r.source.Commit(ctx, batch); err != nil {
				return stats, err
			}
			continue
		}

		result, err := r.apply(ctx, batch)
		if err != nil {
			return stats, err
		}

		cursor := &storage.LedgerCursor{Sequence: result.Sequence, ClosedAt: result.ClosedAt}
		if r.cursor != nil {
			if err := r.cursor.SetLastLedger(ctx, cursor); err != nil {
				return stats, fmt.Errorf("record ledger %d: %w", result.Sequence, err)
			}
		}
		last = cursor

		if err := r.source.Commit(ctx, batch); err != nil {
			return stats, err
		}

		stats.Ledgers++
		stats.EventsApplied += result.Applied
		stats.EventsSkipped += result.Skipped
		stats.EventsReplayed += result.Replayed
		stats.Snapshots += len(result.Snapshots)
		stats.LastLedger = result.Sequence

		for _, l := range r.listeners {
			l.LedgerApplied(ctx, result)
		}
	}
}

func (r *Runner) apply(ctx context.Context, batch *LedgerBatch) (*aggregation.LedgerResult, error) {
	ledger, decodeErrs := r.normalizer.NormalizeLedger(batch)
	for _, err := range decodeErrs {
		r.logger.Warn("skipping undecodable event", zap.Uint32("ledger", batch.Sequence), zap.Error(err))
		observability.RecordEventSkipped("decode")
	}

	result, err := r.engine.ApplyLedger(ctx, ledger)
	if err != nil {
		return nil, fmt.Errorf("apply ledger %d: %w", batch.Sequence, err)
	}
	return result, nil
}

func (r *Runner) lastLedger(ctx context.Context) (*storage.LedgerCursor, error) {
	if r.cursor == nil {
		return nil, nil
	}
	last, err := r.cursor.LastLedger(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger cursor: %w", err)
	}
	return last, nil
}
