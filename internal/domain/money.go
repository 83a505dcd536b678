package domain

import (
	"math"
)

// All monetary values are integer minor units (cents). Floats are accepted only
// at conversion boundaries and are rejected when non-finite.

const maxMinor = math.MaxInt64

// ValidateMinor rejects amounts that can never be a valid monetary value.
func ValidateMinor(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// MinorFromFloat converts a float amount of minor units into an int64,
// rejecting NaN, ±Inf, negatives and values outside the int64 range.
func MinorFromFloat(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	if v < 0 {
		return 0, ErrInvalidAmount
	}
	rounded := math.Round(v)
	if rounded >= float64(maxMinor) {
		return 0, ErrAmountOverflow
	}
	return int64(rounded), nil
}

// AddMinor adds two non-negative minor amounts with overflow detection.
func AddMinor(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrInvalidAmount
	}
	if a > maxMinor-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// SubMinor subtracts b from a, rejecting negative results.
func SubMinor(a, b int64) (int64, error) {
	if a < 0 || b < 0 || b > a {
		return 0, ErrInvalidAmount
	}
	return a - b, nil
}

// MulRateByHours computes rate × hours rounded to the nearest minor unit.
// Hours are fractional (7.5h shifts exist); the rate is minor units per hour.
func MulRateByHours(rateMinor int64, hours float64) (int64, error) {
	if rateMinor < 0 {
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return 0, ErrInvalidAmount
	}
	return MinorFromFloat(float64(rateMinor) * hours)
}

// PercentOf computes amount × pct rounded to the nearest minor unit.
// pct is a fraction (0.05 for 5%), not a percentage.
func PercentOf(amountMinor int64, pct float64) (int64, error) {
	if amountMinor < 0 {
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
		return 0, ErrInvalidAmount
	}
	return MinorFromFloat(float64(amountMinor) * pct)
}
