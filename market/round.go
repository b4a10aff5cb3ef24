package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// Volume steps and tick sizes are decimal quantities like 0.01; float
// remainder math misclassifies them (0.30/0.01 is not an integer in
// binary), so the step arithmetic goes through decimals.

// FloorToStep rounds v down to the nearest multiple of step.
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	dv := decimal.NewFromFloat(v)
	ds := decimal.NewFromFloat(step)
	steps := dv.Div(ds).Floor()
	f, _ := steps.Mul(ds).Float64()
	return f
}

// IsStepMultiple reports whether v is a whole number of steps.
func IsStepMultiple(v, step float64) bool {
	if step <= 0 {
		return true
	}
	dv := decimal.NewFromFloat(v)
	ds := decimal.NewFromFloat(step)
	return dv.Mod(ds).IsZero()
}

// RoundToDigits rounds a price to the symbol's quoted precision.
func RoundToDigits(p float64, digits int) float64 {
	if digits < 0 {
		return p
	}
	f, _ := decimal.NewFromFloat(p).Round(int32(digits)).Float64()
	return f
}

// PipSize returns the price size of one pip for a pip location exponent,
// e.g. -4 for most FX pairs.
func PipSize(loc int) float64 {
	return math.Pow(10, float64(loc))
}
