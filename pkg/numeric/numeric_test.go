package numeric

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsRoundingError(t *testing.T) {
	tests := []struct {
		name      string
		fill      int64
		taker     int64
		maker     int64
		wantError bool
	}{
		{name: "one third payout", fill: 1, taker: 3, maker: 1, wantError: true},
		{name: "exact payout", fill: 999, taker: 1000, maker: 1000, wantError: false},
		{name: "half fill of 100/200", fill: 50, taker: 100, maker: 200, wantError: false},
		{name: "0.0999% error accepted", fill: 1000, taker: 999001, maker: 1000, wantError: false},
		{name: "exactly 0.1% accepted", fill: 1000, taker: 999000, maker: 1000, wantError: false},
		{name: "0.1001% error rejected", fill: 1000, taker: 998999, maker: 1000, wantError: true},
		{name: "payout floors to zero", fill: 1, taker: 1000, maker: 999, wantError: true},
		{name: "zero maker amount", fill: 10, taker: 100, maker: 0, wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsRoundingError(big.NewInt(tt.fill), big.NewInt(tt.taker), big.NewInt(tt.maker))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantError {
				t.Errorf("IsRoundingError(%d, %d, %d) = %v, want %v", tt.fill, tt.taker, tt.maker, got, tt.wantError)
			}
		})
	}
}

func TestIsRoundingErrorDivisionByZero(t *testing.T) {
	if _, err := IsRoundingError(big.NewInt(1), big.NewInt(0), big.NewInt(1)); err != ErrDivisionByZero {
		t.Errorf("err = %v, want ErrDivisionByZero", err)
	}
}

func TestIsRoundingErrorLargeValues(t *testing.T) {
	// 18-decimal amounts must not lose precision.
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	taker := new(big.Int).Mul(big.NewInt(3), e18)
	maker := new(big.Int).Mul(big.NewInt(7), e18)
	fill := new(big.Int).Set(e18)

	got, err := IsRoundingError(fill, taker, maker)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("7e18/3 payout should be within tolerance")
	}
}

func TestPartialAmount(t *testing.T) {
	got, err := PartialAmount(big.NewInt(50), big.NewInt(100), big.NewInt(200))
	if err != nil {
		t.Fatal(err)
	}
	if got.Int64() != 100 {
		t.Errorf("PartialAmount = %s, want 100", got)
	}

	got, _ = PartialAmount(big.NewInt(1), big.NewInt(3), big.NewInt(1))
	if got.Sign() != 0 {
		t.Errorf("PartialAmount floors: got %s, want 0", got)
	}

	if _, err := PartialAmount(big.NewInt(1), big.NewInt(0), big.NewInt(1)); err == nil {
		t.Error("expected division by zero error")
	}
}

func TestFitsUint256(t *testing.T) {
	over := new(big.Int).Add(MaxUint256, big.NewInt(1))
	cases := map[string]struct {
		v    *big.Int
		want bool
	}{
		"nil":      {nil, false},
		"negative": {big.NewInt(-1), false},
		"zero":     {big.NewInt(0), true},
		"max":      {MaxUint256, true},
		"overflow": {over, false},
	}
	for name, c := range cases {
		if got := FitsUint256(c.v); got != c.want {
			t.Errorf("%s: FitsUint256 = %v, want %v", name, got, c.want)
		}
	}
}

func TestUnitConversion(t *testing.T) {
	base, err := ToBaseUnitAmount(decimal.RequireFromString("1.5"), 18)
	if err != nil {
		t.Fatal(err)
	}
	if base.String() != "1500000000000000000" {
		t.Errorf("base = %s", base)
	}

	units := ToUnitAmount(base, 18)
	if !units.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("units = %s, want 1.5", units)
	}

	if _, err := ToBaseUnitAmount(decimal.RequireFromString("0.001"), 2); err == nil {
		t.Error("expected error for sub-base-unit amount")
	}
}

func TestMin(t *testing.T) {
	a, b := big.NewInt(5), big.NewInt(9)
	m := Min(a, b)
	if m.Int64() != 5 {
		t.Errorf("Min = %s", m)
	}
	m.SetInt64(0)
	if a.Int64() != 5 {
		t.Error("Min must return a copy")
	}
}
