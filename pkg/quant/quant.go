// Package quant provides tick and precision arithmetic for order pricing.
// All values are shopspring decimals; rounding is always toward zero so an
// order can never be submitted for more than the caller asked.
package quant

import (
	"github.com/shopspring/decimal"
)

// RoundAmount truncates an amount to the given number of decimal places.
// Truncation (not rounding) keeps the result spendable with the funds the
// caller reserved.
func RoundAmount(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Truncate(decimals)
}

// SnapPrice snaps a price onto the exchange tick grid, toward zero.
// A zero or negative tick returns the price unchanged.
func SnapPrice(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	steps := price.Div(tick).Floor()
	return steps.Mul(tick)
}

// OneTickBetter moves a quote one tick toward the opposite side of the
// book: up for buys, down for sells.
func OneTickBetter(price, tick decimal.Decimal, buy bool) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	if buy {
		return price.Add(tick)
	}
	return price.Sub(tick)
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// WeightedAverage computes sum(value_i * weight_i) / sum(weight_i).
// Returns zero when the total weight is zero.
func WeightedAverage(values, weights []decimal.Decimal) decimal.Decimal {
	if len(values) != len(weights) || len(values) == 0 {
		return decimal.Zero
	}
	num := decimal.Zero
	den := decimal.Zero
	for i := range values {
		num = num.Add(values[i].Mul(weights[i]))
		den = den.Add(weights[i])
	}
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}
