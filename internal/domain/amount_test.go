package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "zero", in: "0", want: "0"},
		{name: "plain", in: "1000000", want: "1000000"},
		{name: "max i128", in: "170141183460469231731687303715884105727", want: "170141183460469231731687303715884105727"},
		{name: "above max", in: "170141183460469231731687303715884105728", wantErr: true},
		{name: "negative", in: "-5", wantErr: true},
		{name: "fraction", in: "1.5", wantErr: true},
		{name: "garbage", in: "ten", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCheckInt128Bounds(t *testing.T) {
	if err := CheckInt128(MinInt128()); err != nil {
		t.Errorf("min i128 rejected: %v", err)
	}
	if err := CheckInt128(MaxInt128()); err != nil {
		t.Errorf("max i128 rejected: %v", err)
	}
	below := MinInt128().Sub(decimal.NewFromInt(1))
	if err := CheckInt128(below); !errors.Is(err, ErrAmountRange) {
		t.Errorf("expected ErrAmountRange, got %v", err)
	}
	if err := CheckInt128(decimal.RequireFromString("0.1")); !errors.Is(err, ErrAmountNotInteger) {
		t.Errorf("expected ErrAmountNotInteger, got %v", err)
	}
}
