package domain

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrAmountRange is returned when a value does not fit a signed 128-bit integer.
var ErrAmountRange = errors.New("amount outside signed 128-bit range")

// ErrAmountNotInteger is returned when a value carries a fractional part.
var ErrAmountNotInteger = errors.New("amount is not an integer")

var (
	maxInt128 = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)
	minInt128 = decimal.NewFromBigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)
)

// MaxInt128 returns 2^127-1.
func MaxInt128() decimal.Decimal { return maxInt128 }

// MinInt128 returns -2^127.
func MinInt128() decimal.Decimal { return minInt128 }

// CheckInt128 verifies that d is an integer within the signed 128-bit range.
func CheckInt128(d decimal.Decimal) error {
	if !d.IsInteger() {
		return ErrAmountNotInteger
	}
	if d.GreaterThan(maxInt128) || d.LessThan(minInt128) {
		return ErrAmountRange
	}
	return nil
}

// ParseAmount parses a base-10 integer string into an unsigned magnitude.
// Negative values and values above 2^127-1 are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckInt128(d); err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("amount must be an unsigned magnitude")
	}
	return d, nil
}
