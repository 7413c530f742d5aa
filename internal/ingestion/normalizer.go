package ingestion

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/domain"
)

// entityShape selects how an action builds its entity key.
type entityShape int

const (
	contractAsset entityShape = iota // contract:asset
	assetFrom                        // asset:from
	assetTo                          // asset:to
	contractFrom                     // contract:from
)

type actionRule struct {
	kind      domain.MetricKind
	direction domain.Direction
	entity    entityShape
	transfer  bool // debit asset:from, credit asset:to
	unit      bool // amount is always 1
}

var actionRules = map[string]actionRule{
	"supply":              {kind: domain.MetricSupply, direction: domain.DirectionIncrease, entity: contractAsset},
	"withdraw":            {kind: domain.MetricSupply, direction: domain.DirectionDecrease, entity: contractAsset},
	"supply_collateral":   {kind: domain.MetricCollateral, direction: domain.DirectionIncrease, entity: contractAsset},
	"withdraw_collateral": {kind: domain.MetricCollateral, direction: domain.DirectionDecrease, entity: contractAsset},
	"borrow":              {kind: domain.MetricBorrowed, direction: domain.DirectionIncrease, entity: contractAsset},
	"repay":               {kind: domain.MetricBorrowed, direction: domain.DirectionDecrease, entity: contractAsset},
	"add_liquidity":       {kind: domain.MetricPoolTVL, direction: domain.DirectionIncrease, entity: contractAsset},
	"remove_liquidity":    {kind: domain.MetricPoolTVL, direction: domain.DirectionDecrease, entity: contractAsset},
	"transfer":            {kind: domain.MetricBalance, entity: assetFrom, transfer: true},
	"mint":                {kind: domain.MetricBalance, direction: domain.DirectionIncrease, entity: assetTo},
	"burn":                {kind: domain.MetricBalance, direction: domain.DirectionDecrease, entity: assetFrom},
	"clawback":            {kind: domain.MetricBalance, direction: domain.DirectionDecrease, entity: assetFrom},
	"add_sig":             {kind: domain.MetricSignerActive, direction: domain.DirectionIncrease, entity: contractFrom, unit: true},
	"rm_sig":              {kind: domain.MetricSignerActive, direction: domain.DirectionDecrease, entity: contractFrom, unit: true},
}

// Actions lists the supported raw actions.
func Actions() []string {
	out := make([]string, 0, len(actionRules))
	for a := range actionRules {
		out = append(out, a)
	}
	return out
}

// Normalizer converts raw contract events into domain events.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize decodes raw. Any failure is a *aggregation.DecodeError and the
// whole event is rejected, so a transfer never yields only one side.
func (n *Normalizer) Normalize(raw *RawEvent) (*domain.DomainEvent, error) {
	ev, err := n.normalize(raw)
	if err != nil {
		return nil, &aggregation.DecodeError{Ledger: raw.Ledger, Index: raw.EventIndex, TxHash: raw.TxHash, Err: err}
	}
	return ev, nil
}

func (n *Normalizer) normalize(raw *RawEvent) (*domain.DomainEvent, error) {
	rule, ok := actionRules[raw.Action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", raw.Action)
	}

	if err := checkAddresses(raw, rule); err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(1)
	if !rule.unit {
		var err error
		if amount, err = domain.ParseAmount(raw.Amount); err != nil {
			return nil, fmt.Errorf("amount %q: %w", raw.Amount, err)
		}
	}

	ev := &domain.DomainEvent{
		MetricKind:     rule.kind,
		Amount:         amount,
		Direction:      rule.direction,
		LedgerSequence: raw.Ledger,
		Timestamp:      raw.Timestamp,
		Source:         raw.Source,
		TxHash:         raw.TxHash,
	}
	if ev.Source == "" {
		ev.Source = raw.From
	}

	switch rule.entity {
	case contractAsset:
		ev.EntityKey = raw.Contract + ":" + raw.Asset
	case assetFrom:
		ev.EntityKey = raw.Asset + ":" + raw.From
	case assetTo:
		ev.EntityKey = raw.Asset + ":" + raw.To
	case contractFrom:
		ev.EntityKey = raw.Contract + ":" + raw.From
	}
	if rule.transfer {
		credit := raw.Asset + ":" + raw.To
		ev.CounterpartyKey = &credit
	}

	return ev, nil
}

// checkAddresses validates every address the rule reads, plus Source when present.
func checkAddresses(raw *RawEvent, rule actionRule) error {
	type field struct {
		name, value string
	}
	var required []field
	switch rule.entity {
	case contractAsset:
		required = []field{{"contract", raw.Contract}, {"asset", raw.Asset}}
	case assetFrom:
		required = []field{{"asset", raw.Asset}, {"from", raw.From}}
	case assetTo:
		required = []field{{"asset", raw.Asset}, {"to", raw.To}}
	case contractFrom:
		required = []field{{"contract", raw.Contract}, {"from", raw.From}}
	}
	if rule.transfer {
		required = append(required, field{"to", raw.To})
	}
	if raw.Source != "" {
		required = append(required, field{"source", raw.Source})
	}

	var errs []error
	for _, f := range required {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%s address missing", f.name))
			continue
		}
		if err := ValidateStrkey(f.value); err != nil {
			errs = append(errs, fmt.Errorf("%s address: %w", f.name, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeLedger decodes every event of batch into a ledger invocation.
// Rejected events are counted in Ledger.Rejected and returned for logging.
func (n *Normalizer) NormalizeLedger(batch *LedgerBatch) (*domain.Ledger, []error) {
	ledger := &domain.Ledger{
		Sequence: batch.Sequence,
		ClosedAt: batch.ClosedAt,
		Events:   make([]*domain.DomainEvent, 0, len(batch.Events)),
		Rejected: batch.Malformed,
	}

	var errs []error
	for _, raw := range batch.Events {
		ev, err := n.Normalize(raw)
		if err != nil {
			ledger.Rejected++
			errs = append(errs, err)
			continue
		}
		ev.EventIndex = len(ledger.Events)
		ledger.Events = append(ledger.Events, ev)
	}
	return ledger, errs
}
