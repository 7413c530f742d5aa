package ingestion

// LedgerBatch is the raw events of one closed ledger.
type LedgerBatch struct {
	Sequence  uint32
	ClosedAt  uint64      // max timestamp seen for the ledger
	Events    []*RawEvent // sorted, close markers removed
	Malformed int         // records dropped before decoding
}

func (b *LedgerBatch) observe(raw *RawEvent) {
	if raw.Timestamp > b.ClosedAt {
		b.ClosedAt = raw.Timestamp
	}
	if !raw.IsLedgerClose() {
		b.Events = append(b.Events, raw)
	}
}

// GroupByLedger splits sorted events into one batch per ledger.
// Close markers contribute their timestamp but are not kept as events.
func GroupByLedger(events []*RawEvent) []*LedgerBatch {
	var batches []*LedgerBatch
	var cur *LedgerBatch
	for _, raw := range events {
		if cur == nil || raw.Ledger != cur.Sequence {
			cur = &LedgerBatch{Sequence: raw.Ledger}
			batches = append(batches, cur)
		}
		cur.observe(raw)
	}
	return batches
}
