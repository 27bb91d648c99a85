package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundCurrency rounds to cents, half away from zero. Non-finite values are returned as is.
func RoundCurrency(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// PercentOf returns pct% of amount rounded to cents, or NaN when either input is not finite.
func PercentOf(amount, pct float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || math.IsNaN(pct) || math.IsInf(pct, 0) {
		return math.NaN()
	}
	f, _ := decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return f
}
