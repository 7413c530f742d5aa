package ingestion

import "context"

// LedgerSource yields closed ledgers in ascending sequence order.
type LedgerSource interface {
	// Next blocks until the next ledger is complete.
	// Returns io.EOF when a finite source is exhausted.
	Next(ctx context.Context) (*LedgerBatch, error)

	// Commit acknowledges that batch has been applied.
	Commit(ctx context.Context, batch *LedgerBatch) error
}
