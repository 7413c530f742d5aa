package domain

import "fmt"

// MetricKind identifies which aggregate dimension a series tracks.
type MetricKind string

const (
	MetricSupply       MetricKind = "supply"
	MetricCollateral   MetricKind = "collateral"
	MetricBorrowed     MetricKind = "borrowed"
	MetricPoolTVL      MetricKind = "pool_tvl"
	MetricBalance      MetricKind = "balance"
	MetricSignerActive MetricKind = "signer_active"
)

// MetricKinds lists every supported kind in display order.
var MetricKinds = []MetricKind{
	MetricSupply,
	MetricCollateral,
	MetricBorrowed,
	MetricPoolTVL,
	MetricBalance,
	MetricSignerActive,
}

// String returns the string representation of MetricKind.
func (k MetricKind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the supported values.
func (k MetricKind) IsValid() bool {
	switch k {
	case MetricSupply, MetricCollateral, MetricBorrowed, MetricPoolTVL, MetricBalance, MetricSignerActive:
		return true
	}
	return false
}

// ParseMetricKind converts a stored or user supplied name into a MetricKind.
func ParseMetricKind(s string) (MetricKind, error) {
	k := MetricKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
	return k, nil
}

// Direction tells whether an event increases or decreases a series.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}
