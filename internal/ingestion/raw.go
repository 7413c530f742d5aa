package ingestion

import (
	"encoding/json"
	"fmt"
)

// ActionLedgerClose marks the end of a ledger on streaming transports.
const ActionLedgerClose = "ledger_close"

// RawEvent is one contract event as emitted by the ledger feed.
// Amounts are base-10 integer strings; addresses are strkeys.
type RawEvent struct {
	Ledger     uint32 `json:"ledger"`
	Timestamp  uint64 `json:"timestamp"`
	TxIndex    int    `json:"tx_index"`
	EventIndex int    `json:"event_index"`
	TxHash     string `json:"tx_hash,omitempty"`
	Contract   string `json:"contract,omitempty"`
	Asset      string `json:"asset,omitempty"`
	Action     string `json:"action"`
	Amount     string `json:"amount,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Source     string `json:"source,omitempty"`
}

// IsLedgerClose reports whether the record is a ledger close marker.
func (r *RawEvent) IsLedgerClose() bool {
	return r.Action == ActionLedgerClose
}

// ParseRawEvent decodes one JSON record.
func ParseRawEvent(data []byte) (*RawEvent, error) {
	var raw RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode raw event: %w", err)
	}
	if raw.Ledger == 0 {
		return nil, fmt.Errorf("decode raw event: missing ledger")
	}
	return &raw, nil
}

func marshalRawEvent(r *RawEvent) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode raw event: %w", err)
	}
	return data, nil
}

// LedgerClose builds the close marker for ledger seq.
func LedgerClose(seq uint32, closedAt uint64) *RawEvent {
	return &RawEvent{Ledger: seq, Timestamp: closedAt, Action: ActionLedgerClose}
}
