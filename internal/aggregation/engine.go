// Package aggregation applies decoded ledger events to the append-only snapshot log.
//
// Each event reads the latest snapshot of its series, computes the new cumulative
// value and appends the next version. Transfers debit the entity series and then
// credit the counterparty series with the opposite delta.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/observability"
	"ledger-aggregates/internal/storage"
)

// Engine is the single writer for a set of series.
type Engine struct {
	mu        sync.Mutex
	sequencer storage.KeySequencer
	snapshots storage.SnapshotStore
	logger    *zap.Logger
}

// Options for creating Engine.
type Options struct {
	Sequencer storage.KeySequencer
	Snapshots storage.SnapshotStore
	Logger    *zap.Logger // nil disables logging
}

// New creates a new Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sequencer: opts.Sequencer,
		snapshots: opts.Snapshots,
		logger:    logger,
	}
}

// LedgerResult summarizes one ledger-close invocation.
type LedgerResult struct {
	Sequence  uint32
	ClosedAt  uint64
	Applied   int                // events that produced snapshots
	Skipped   int                // events rejected as undecodable
	Replayed  int                // events already in the log from an earlier attempt
	Snapshots []*domain.Snapshot // in append order
	Touched   []domain.SeriesKey // distinct series, first-touch order
}

func (r *LedgerResult) add(snaps []*domain.Snapshot, seen map[domain.SeriesKey]struct{}) {
	r.Applied++
	for _, s := range snaps {
		r.Snapshots = append(r.Snapshots, s)
		if _, ok := seen[s.Key()]; !ok {
			seen[s.Key()] = struct{}{}
			r.Touched = append(r.Touched, s.Key())
		}
	}
}

// errReplayed marks a leg the same ledger already wrote to its series.
var errReplayed = errors.New("event already applied")

// ApplyLedger applies every event of ledger in order.
//
// Invalid events are skipped and counted. The first fatal error stops the
// invocation and is returned together with the partial result; snapshots
// appended before it stay durable. Once started, the invocation ignores
// cancellation of ctx.
//
// Every snapshot records the position of its event within the ledger. When a
// failed ledger is applied again, legs already present in the log are not
// written twice; such events are counted in Replayed.
func (e *Engine) ApplyLedger(ctx context.Context, ledger *domain.Ledger) (*LedgerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	result := &LedgerResult{
		Sequence: ledger.Sequence,
		ClosedAt: ledger.ClosedAt,
		Skipped:  ledger.Rejected,
	}
	seen := make(map[domain.SeriesKey]struct{})
	log := e.logger.With(zap.Uint32("ledger", ledger.Sequence))

	for i, ev := range ledger.Events {
		if ev == nil {
			continue
		}
		if ev.LedgerSequence != ledger.Sequence {
			err := fmt.Errorf("%w: event %d belongs to ledger %d, invocation is ledger %d",
				ErrOutOfOrder, i, ev.LedgerSequence, ledger.Sequence)
			return result, e.fail(log, err)
		}
		if err := ev.Validate(); err != nil {
			derr := &DecodeError{Ledger: ledger.Sequence, Index: i, TxHash: ev.TxHash, Err: err}
			log.Warn("skipping event", zap.Int("index", i), zap.Error(derr))
			observability.RecordEventSkipped("invalid")
			result.Skipped++
			continue
		}

		snaps, err := e.apply(ctx, ev, uint32(i), true)
		if err != nil {
			return result, e.fail(log, err)
		}
		if len(snaps) == 0 {
			log.Debug("event already applied", zap.Int("index", i))
			observability.RecordEventSkipped("replayed")
			result.Replayed++
			continue
		}
		result.add(snaps, seen)
		observability.RecordEventApplied(string(ev.MetricKind), ev.IsTransfer())
	}

	observability.RecordLedgerProcessed(ledger.Sequence, time.Since(start))
	log.Debug("ledger applied",
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("replayed", result.Replayed),
		zap.Int("snapshots", len(result.Snapshots)))

	return result, nil
}

// Apply applies a single event outside a ledger invocation.
// Invalid events return a *DecodeError and write nothing.
func (e *Engine) Apply(ctx context.Context, ev *domain.DomainEvent) ([]*domain.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ev.Validate(); err != nil {
		return nil, &DecodeError{Ledger: ev.LedgerSequence, Index: ev.EventIndex, TxHash: ev.TxHash, Err: err}
	}
	snaps, err := e.apply(ctx, ev, uint32(ev.EventIndex), false)
	if err == nil {
		observability.RecordEventApplied(string(ev.MetricKind), ev.IsTransfer())
	}
	return snaps, err
}

func (e *Engine) fail(log *zap.Logger, err error) error {
	kind := Kind(err)
	observability.RecordFatalError(kind)

	fields := []zap.Field{zap.String("kind", kind), zap.Error(err)}
	var pte *PartialTransferError
	if errors.As(err, &pte) {
		fields = append(fields,
			zap.String("entity_key", pte.Debit.EntityKey),
			zap.String("metric_kind", string(pte.Debit.MetricKind)),
			zap.Uint32("version", pte.Debit.Version),
			zap.String("credit_key", pte.Credit.EntityKey))
	}
	log.Error("ledger invocation aborted", fields...)
	return err
}

// apply writes the legs of ev. With resume set, legs whose position is already
// in the log are left out; an empty result then means the event was replayed.
func (e *Engine) apply(ctx context.Context, ev *domain.DomainEvent, index uint32, resume bool) ([]*domain.Snapshot, error) {
	pos := domain.EventPosition{Ledger: ev.LedgerSequence, Index: index, Leg: domain.LegPrimary}

	credit, ok := ev.CounterpartySeries()
	if !ok {
		step, err := e.prepare(ctx, ev.Key(), ev.SignedAmount(), ev, pos, resume)
		if errors.Is(err, errReplayed) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		snap, err := e.commit(ctx, step)
		if err != nil {
			return nil, err
		}
		return []*domain.Snapshot{snap}, nil
	}
	return e.transfer(ctx, ev, credit, pos, resume)
}

// transfer debits ev.Key() and then credits credit with the same amount.
// For distinct keys both sides are checked before the debit is written, so
// only a storage failure between the two appends can leave a partial transfer.
func (e *Engine) transfer(ctx context.Context, ev *domain.DomainEvent, credit domain.SeriesKey, pos domain.EventPosition, resume bool) ([]*domain.Snapshot, error) {
	debitKey := ev.Key()
	self := debitKey == credit
	creditPos := pos
	creditPos.Leg = domain.LegCredit

	debitStep, err := e.prepare(ctx, debitKey, ev.Amount.Neg(), ev, pos, resume)
	if err != nil && !errors.Is(err, errReplayed) {
		return nil, err
	}

	var creditStep *pendingStep
	if !self {
		creditStep, err = e.prepare(ctx, credit, ev.Amount, ev, creditPos, resume)
		if err != nil && !errors.Is(err, errReplayed) {
			return nil, err
		}
	}

	var written []*domain.Snapshot
	var debit *domain.Snapshot
	if debitStep != nil {
		if debit, err = e.commit(ctx, debitStep); err != nil {
			return nil, err
		}
		written = append(written, debit)
	}

	if self {
		// The credit builds on the debit just written.
		creditStep, err = e.prepare(ctx, credit, ev.Amount, ev, creditPos, resume)
		if err != nil && !errors.Is(err, errReplayed) {
			return nil, partialTransfer(debit, credit, err)
		}
	}

	if creditStep != nil {
		snap, err := e.commit(ctx, creditStep)
		if err != nil {
			return nil, partialTransfer(debit, credit, err)
		}
		written = append(written, snap)
	}

	return written, nil
}

// partialTransfer wraps a credit failure. A debit written by an earlier
// attempt is not reported again.
func partialTransfer(debit *domain.Snapshot, credit domain.SeriesKey, err error) error {
	if debit == nil {
		return err
	}
	return &PartialTransferError{Debit: debit, Credit: credit, Err: err}
}

// pendingStep is a snapshot computed from the latest state but not yet versioned.
type pendingStep struct {
	key      domain.SeriesKey
	value    decimal.Decimal
	delta    decimal.Decimal
	expected uint32 // latest.version + 1, or 0 for a new series
	pos      domain.EventPosition
	ev       *domain.DomainEvent
}

func (e *Engine) prepare(ctx context.Context, key domain.SeriesKey, delta decimal.Decimal, ev *domain.DomainEvent, pos domain.EventPosition, resume bool) (*pendingStep, error) {
	step := &pendingStep{key: key, delta: delta, value: delta, pos: pos, ev: ev}

	prev, err := e.snapshots.Latest(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("latest %s: %w: %w", key, ErrStorageFault, err)
	default:
		if resume && prev.LedgerSequence == pos.Ledger && prev.Position().Compare(pos) >= 0 {
			return nil, errReplayed
		}
		if ev.LedgerSequence < prev.LedgerSequence || ev.Timestamp < prev.Timestamp {
			return nil, fmt.Errorf("%w: %s at ledger %d ts %d is older than v%d at ledger %d ts %d",
				ErrOutOfOrder, key, ev.LedgerSequence, ev.Timestamp,
				prev.Version, prev.LedgerSequence, prev.Timestamp)
		}
		step.value = prev.CumulativeValue.Add(delta)
		step.expected = prev.Version + 1
	}

	if err := domain.CheckInt128(step.value); err != nil {
		return nil, fmt.Errorf("%w: %s would reach %s", ErrOverflow, key, step.value)
	}
	return step, nil
}

func (e *Engine) commit(ctx context.Context, step *pendingStep) (*domain.Snapshot, error) {
	version, err := e.sequencer.NextVersion(ctx, step.key, step.expected)
	if err != nil {
		return nil, fmt.Errorf("next version %s: %w: %w", step.key, ErrStorageFault, err)
	}
	if version != step.expected {
		return nil, fmt.Errorf("%w: sequencer gave %s v%d, snapshot log expects v%d",
			ErrInconsistency, step.key, version, step.expected)
	}

	snap := &domain.Snapshot{
		EntityKey:       step.key.EntityKey,
		MetricKind:      step.key.MetricKind,
		Version:         version,
		CumulativeValue: step.value,
		Delta:           step.delta,
		LedgerSequence:  step.ev.LedgerSequence,
		Timestamp:       step.ev.Timestamp,
		Source:          step.ev.Source,
		TxHash:          step.ev.TxHash,
		EventIndex:      step.pos.Index,
		Leg:             step.pos.Leg,
	}

	if err := e.snapshots.Append(ctx, snap); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s v%d already exists", ErrInconsistency, step.key, version)
		}
		return nil, fmt.Errorf("append %s v%d: %w: %w", step.key, version, ErrStorageFault, err)
	}

	observability.RecordSnapshotAppended(string(step.key.MetricKind))
	return snap, nil
}
