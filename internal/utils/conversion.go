/*
This file contains common utility functions for fixed-point arithmetic between token amounts and
exchange rates, plus conversions used when reporting amounts.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrRateNegative     = errors.New("rate is negative")
	ErrDivisionByZero   = errors.New("division by zero rate")
	ErrUnderflow        = errors.New("subtraction underflow")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// decimalFractional is 10^18, the scale of a LegacyDec's raw integer.
var decimalFractional = sdkmath.NewIntWithDecimal(1, sdkmath.LegacyPrecision)

func checkOperands(amount sdkmath.Int, rate sdkmath.LegacyDec) error {
	if amount.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	if rate.IsNil() || rate.IsNegative() {
		return ErrRateNegative
	}
	return nil
}

// MulRate returns floor(amount * rate).
func MulRate(amount sdkmath.Int, rate sdkmath.LegacyDec) (sdkmath.Int, error) {
	if err := checkOperands(amount, rate); err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw := sdkmath.NewIntFromBigInt(rate.BigInt())
	return amount.Mul(raw).Quo(decimalFractional), nil
}

// DivRate returns floor(amount / rate). The division is done on the raw 10^18-scaled
// integers so no intermediate rounding can push the result above the exact quotient.
func DivRate(amount sdkmath.Int, rate sdkmath.LegacyDec) (sdkmath.Int, error) {
	if err := checkOperands(amount, rate); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if rate.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	raw := sdkmath.NewIntFromBigInt(rate.BigInt())
	return amount.Mul(decimalFractional).Quo(raw), nil
}

// SubUnsigned returns a - b, failing instead of producing a negative amount.
func SubUnsigned(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if a.LT(b) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return a.Sub(b), nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
