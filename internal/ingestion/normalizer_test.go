package ingestion

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/domain"
)

func TestNormalize_ActionMapping(t *testing.T) {
	tests := []struct {
		action    string
		kind      domain.MetricKind
		direction domain.Direction
		entity    string
	}{
		{"supply", domain.MetricSupply, domain.DirectionIncrease, pool + ":" + usdc},
		{"withdraw", domain.MetricSupply, domain.DirectionDecrease, pool + ":" + usdc},
		{"supply_collateral", domain.MetricCollateral, domain.DirectionIncrease, pool + ":" + usdc},
		{"withdraw_collateral", domain.MetricCollateral, domain.DirectionDecrease, pool + ":" + usdc},
		{"borrow", domain.MetricBorrowed, domain.DirectionIncrease, pool + ":" + usdc},
		{"repay", domain.MetricBorrowed, domain.DirectionDecrease, pool + ":" + usdc},
		{"add_liquidity", domain.MetricPoolTVL, domain.DirectionIncrease, pool + ":" + usdc},
		{"remove_liquidity", domain.MetricPoolTVL, domain.DirectionDecrease, pool + ":" + usdc},
		{"mint", domain.MetricBalance, domain.DirectionIncrease, usdc + ":" + bob},
		{"burn", domain.MetricBalance, domain.DirectionDecrease, usdc + ":" + alice},
		{"clawback", domain.MetricBalance, domain.DirectionDecrease, usdc + ":" + alice},
		{"add_sig", domain.MetricSignerActive, domain.DirectionIncrease, pool + ":" + alice},
		{"rm_sig", domain.MetricSignerActive, domain.DirectionDecrease, pool + ":" + alice},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			ev, err := n.Normalize(rawEvent(9, 0, 0, tt.action, "250"))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if ev.MetricKind != tt.kind || ev.Direction != tt.direction || ev.EntityKey != tt.entity {
				t.Errorf("got (%s, %s, %s), want (%s, %s, %s)",
					ev.MetricKind, ev.Direction, ev.EntityKey, tt.kind, tt.direction, tt.entity)
			}
			if ev.IsTransfer() {
				t.Error("only transfers carry a counterparty")
			}
			if err := ev.Validate(); err != nil {
				t.Errorf("normalized event must validate: %v", err)
			}
		})
	}
}

func TestNormalize_Transfer(t *testing.T) {
	ev, err := NewNormalizer().Normalize(rawEvent(9, 0, 0, "transfer", "75"))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.EntityKey != usdc+":"+alice {
		t.Errorf("debit key = %s", ev.EntityKey)
	}
	credit, ok := ev.CounterpartySeries()
	if !ok || credit.EntityKey != usdc+":"+bob {
		t.Errorf("credit key = %v, %v", credit, ok)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(75)) || ev.Source != alice {
		t.Errorf("amount %s, source %s", ev.Amount, ev.Source)
	}
	if ev.LedgerSequence != 9 || ev.Timestamp != 45 {
		t.Errorf("ledger metadata = %d/%d", ev.LedgerSequence, ev.Timestamp)
	}
}

func TestNormalize_SignerAmountIsOne(t *testing.T) {
	ev, err := NewNormalizer().Normalize(rawEvent(1, 0, 0, "add_sig", ""))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("amount = %s, want 1", ev.Amount)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawEvent)
	}{
		{"unknown action", func(r *RawEvent) { r.Action = "flash_loan" }},
		{"bad transfer recipient", func(r *RawEvent) { r.Action = "transfer"; r.To = "GNOTANADDRESS" }},
		{"missing transfer recipient", func(r *RawEvent) { r.Action = "transfer"; r.To = "" }},
		{"bad contract", func(r *RawEvent) { r.Contract = alice[:40] }},
		{"bad source", func(r *RawEvent) { r.Source = "nope" }},
		{"negative amount", func(r *RawEvent) { r.Amount = "-5" }},
		{"fractional amount", func(r *RawEvent) { r.Amount = "1.5" }},
		{"amount above int128", func(r *RawEvent) { r.Amount = "170141183460469231731687303715884105728" }},
		{"empty amount", func(r *RawEvent) { r.Amount = "" }},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawEvent(3, 0, 2, "supply", "10")
			tt.mutate(raw)

			ev, err := n.Normalize(raw)
			if ev != nil {
				t.Fatalf("expected no event, got %+v", ev)
			}
			var derr *aggregation.DecodeError
			if !errors.As(err, &derr) || !errors.Is(err, aggregation.ErrDecode) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if derr.Ledger != 3 || derr.Index != 2 {
				t.Errorf("decode error position = %d/%d", derr.Ledger, derr.Index)
			}
		})
	}
}

func TestNormalize_AcceptsMuxedSource(t *testing.T) {
	raw := rawEvent(1, 0, 0, "supply", "1")
	raw.Source = muxed(9)
	ev, err := NewNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Source != raw.Source {
		t.Errorf("source = %s", ev.Source)
	}
}

func TestNormalizeLedger(t *testing.T) {
	batch := &LedgerBatch{
		Sequence:  4,
		ClosedAt:  20,
		Malformed: 1,
		Events: []*RawEvent{
			rawEvent(4, 0, 0, "supply", "10"),
			rawEvent(4, 0, 1, "explode", "10"),
			rawEvent(4, 1, 0, "borrow", "3"),
		},
	}

	ledger, errs := NewNormalizer().NormalizeLedger(batch)
	if ledger.Sequence != 4 || ledger.ClosedAt != 20 {
		t.Errorf("ledger identity = %d/%d", ledger.Sequence, ledger.ClosedAt)
	}
	if len(ledger.Events) != 2 || len(errs) != 1 {
		t.Fatalf("events = %d, errs = %d", len(ledger.Events), len(errs))
	}
	if ledger.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", ledger.Rejected)
	}
	if ledger.Events[1].EventIndex != 1 {
		t.Errorf("event index = %d, want 1", ledger.Events[1].EventIndex)
	}
}
