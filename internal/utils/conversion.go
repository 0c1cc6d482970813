/*
This file contains common utility functions for USD arithmetic. Amounts are computed with
SDK LegacyDec so that allocation splits add up exactly before being rounded to cents.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// UsdPrecision is the number of decimal places USD amounts are rounded to.
const UsdPrecision = 2

// Float64ToDec converts a finite float64 to a LegacyDec without going through binary float math.
func Float64ToDec(value float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: value is %f", ErrNotFinite, value)
	}
	if value == 0 {
		return sdkmath.LegacyZeroDec(), nil
	}

	// Use string conversion to avoid floating point precision issues
	dec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(value, 'f', -1, 64))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 rounds a LegacyDec to the given number of decimal places and converts it to float64.
func DecToFloat64(dec sdkmath.LegacyDec, places int) (float64, error) {
	if dec.IsNil() {
		return 0, fmt.Errorf("%w: decimal is nil", ErrConversionFailed)
	}
	factor := int64(math.Pow10(places))
	rounded := sdkmath.LegacyNewDecFromInt(dec.MulInt64(factor).RoundInt()).QuoInt64(factor)

	result, err := rounded.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// PercentOf returns amount * percent / 100 as a decimal. The amount cannot be negative.
func PercentOf(amount float64, percent float64) (sdkmath.LegacyDec, error) {
	if amount < 0 {
		return sdkmath.LegacyZeroDec(), ErrAmountNegative
	}
	amountDec, err := Float64ToDec(amount)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	percentDec, err := Float64ToDec(percent)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return amountDec.Mul(percentDec).QuoInt64(100), nil
}

// UsdPercentOf returns amount * percent / 100 rounded to cents.
func UsdPercentOf(amount float64, percent float64) (float64, error) {
	dec, err := PercentOf(amount, percent)
	if err != nil {
		return 0, err
	}
	return DecToFloat64(dec, UsdPrecision)
}

// Round rounds a float64 to the given number of decimal places.
func Round(value float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(value*factor) / factor
}

// Clamp bounds value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

// IsFinite reports whether value is neither NaN nor infinite.
func IsFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
