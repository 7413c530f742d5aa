package storage

import "context"

// LedgerCursor is the last ledger whose invocation completed.
type LedgerCursor struct {
	Sequence uint32 // last fully applied ledger
	ClosedAt uint64 // its close time, Unix seconds
}

// LedgerCursorStore persists ingestion progress so a restart resumes
// after the last completed ledger instead of re-applying it.
type LedgerCursorStore interface {
	// LastLedger returns the last completed ledger.
	// Returns ErrNotFound if no ledger has been recorded yet.
	LastLedger(ctx context.Context) (*LedgerCursor, error)

	// SetLastLedger records a completed ledger.
	SetLastLedger(ctx context.Context, cursor *LedgerCursor) error
}

// Stores groups the backends an aggregation deployment needs.
type Stores struct {
	Sequencer KeySequencer
	Snapshots SnapshotStore
	Cursor    LedgerCursorStore
}
