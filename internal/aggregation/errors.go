package aggregation

import (
	"errors"
	"fmt"

	"ledger-aggregates/internal/domain"
)

// Error kinds. Everything except ErrDecode aborts the ledger invocation.
var (
	// ErrDecode marks an event that cannot be aggregated; it is skipped.
	ErrDecode = errors.New("event decode failed")

	// ErrInconsistency is returned when the snapshot log and the key sequencer disagree.
	ErrInconsistency = errors.New("snapshot store inconsistency")

	// ErrStorageFault wraps any backend read or write failure.
	ErrStorageFault = errors.New("storage fault")

	// ErrPartialTransfer is returned when a transfer debit was written without its credit.
	ErrPartialTransfer = errors.New("partial transfer write")

	// ErrOutOfOrder is returned when an event is older than the latest snapshot of its series.
	ErrOutOfOrder = errors.New("event out of order")

	// ErrOverflow is returned when a cumulative value leaves the signed 128-bit range.
	ErrOverflow = errors.New("cumulative value overflow")
)

// DecodeError describes a skipped event.
type DecodeError struct {
	Ledger uint32 // ledger the event arrived in
	Index  int    // position within the ledger
	TxHash string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event %d of ledger %d: %v", e.Index, e.Ledger, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports ErrDecode so callers can classify with errors.Is.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// PartialTransferError records a transfer whose debit is durable but whose credit is not.
// Nothing repairs this automatically; an operator reconciles Credit by hand.
type PartialTransferError struct {
	Debit  *domain.Snapshot // snapshot written for the debit side
	Credit domain.SeriesKey // series that did not receive its credit
	Err    error            // cause of the failed credit
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("transfer debited %s v%d but not credited %s: %v",
		e.Debit.Key(), e.Debit.Version, e.Credit, e.Err)
}

func (e *PartialTransferError) Unwrap() error { return e.Err }

// Is reports ErrPartialTransfer so callers can classify with errors.Is.
func (e *PartialTransferError) Is(target error) bool { return target == ErrPartialTransfer }

// IsFatal reports whether err must abort the ledger invocation.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrDecode)
}

// Kind returns a short label for err, used in metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrPartialTransfer):
		return "partial_transfer"
	case errors.Is(err, ErrInconsistency):
		return "inconsistency"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrStorageFault):
		return "storage"
	}
	return "unknown"
}
