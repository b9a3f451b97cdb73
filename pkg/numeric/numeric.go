// Package numeric holds the fixed-point rules the exchange contract applies to
// token amounts. Every amount is an unsigned integer in base units; nothing in
// here uses floating point.
package numeric

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// RoundingErrorPrecision scales the relative rounding error to parts per million.
	RoundingErrorPrecision = 1_000_000
	// RoundingErrorThreshold is 0.1% expressed in parts per million.
	RoundingErrorThreshold = 1_000
)

var (
	// MaxUint256 is 2^256 - 1, the largest value a contract word can hold.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// UnlimitedAllowance is the allowance tokens like ZRX and WETH treat as infinite.
	UnlimitedAllowance = new(big.Int).Set(MaxUint256)

	ErrDivisionByZero = errors.New("division by zero")

	roundingPrecision = big.NewInt(RoundingErrorPrecision)
	roundingThreshold = big.NewInt(RoundingErrorThreshold)
)

// FitsUint256 reports whether v is non-nil, non-negative and at most 2^256-1.
func FitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

// IsRoundingError reports whether paying out floor(numerator*target/denominator)
// deviates from the exact rational value by more than 0.1%.
//
// The relative error is remainder/(numerator*target) where remainder is
// numerator*target mod denominator. It is scaled to parts per million with
// truncating division, exactly as the exchange contract computes it, so an
// error of precisely 0.1% is accepted.
func IsRoundingError(numerator, denominator, target *big.Int) (bool, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return false, ErrDivisionByZero
	}
	if numerator == nil || target == nil {
		return false, fmt.Errorf("nil operand")
	}

	product := new(big.Int).Mul(numerator, target)
	remainder := new(big.Int).Mod(product, denominator)
	if remainder.Sign() == 0 {
		return false, nil
	}

	errPPM := new(big.Int).Mul(remainder, roundingPrecision)
	errPPM.Quo(errPPM, product)
	return errPPM.Cmp(roundingThreshold) > 0, nil
}

// PartialAmount returns floor(numerator*target/denominator).
func PartialAmount(numerator, denominator, target *big.Int) (*big.Int, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if numerator == nil || target == nil {
		return nil, fmt.Errorf("nil operand")
	}
	out := new(big.Int).Mul(numerator, target)
	return out.Quo(out, denominator), nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ToUnitAmount converts a base-unit amount to whole token units,
// e.g. 1e18 base units of an 18-decimal token is 1 unit.
func ToUnitAmount(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}

// ToBaseUnitAmount converts a unit amount to base units. It fails when the
// result would need a fraction of the smallest denomination.
func ToBaseUnitAmount(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}
