package reporting

import (
	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
)

// actionLabels maps a kind to its (increase, decrease) labels.
var actionLabels = map[domain.MetricKind][2]string{
	domain.MetricSupply:       {"supply", "withdraw"},
	domain.MetricCollateral:   {"supply_collateral", "withdraw_collateral"},
	domain.MetricBorrowed:     {"borrow", "repay"},
	domain.MetricPoolTVL:      {"add_liquidity", "remove_liquidity"},
	domain.MetricBalance:      {"credit", "debit"},
	domain.MetricSignerActive: {"add_signer", "remove_signer"},
}

// ActionLabel names the action behind a snapshot from its kind and delta sign.
// A zero delta is labelled as an increase.
func ActionLabel(kind domain.MetricKind, delta decimal.Decimal) string {
	labels, ok := actionLabels[kind]
	if !ok {
		return "unknown"
	}
	if delta.IsNegative() {
		return labels[1]
	}
	return labels[0]
}

// Scale converts a raw integer amount to display units.
func Scale(v decimal.Decimal, decimals int32) decimal.Decimal {
	return v.Shift(-decimals)
}

// FormatAmount renders a raw amount in display units with exactly decimals places.
func FormatAmount(v decimal.Decimal, decimals int32) string {
	return Scale(v, decimals).StringFixed(decimals)
}
