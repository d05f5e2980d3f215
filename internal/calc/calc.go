// Package calc is the pure fee/profit arithmetic: trading fees, the minimum
// qualifying sell price and the safety-exit threshold. Rounding directions
// here are load-bearing: the minimum sell price rounds up, protective floors
// and quantities round down. They must never be conflated.
package calc

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Calculator holds the configured fee and margin parameters.
type Calculator struct {
	feeRate         decimal.Decimal // e.g. 0.001 for 0.1% per side
	minMargin       decimal.Decimal // net margin required over entry cost
	safetyThreshold decimal.Decimal // adverse move fraction forcing an exit
	precision       int32           // decimal places for quoted prices
}

// New creates a Calculator. All rates are fractions, not percents.
func New(feeRate, minMargin, safetyThreshold decimal.Decimal, precision int32) *Calculator {
	return &Calculator{
		feeRate:         feeRate,
		minMargin:       minMargin,
		safetyThreshold: safetyThreshold,
		precision:       precision,
	}
}

// Fee returns the trading fee for a fill of qty at price.
func (c *Calculator) Fee(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Mul(c.feeRate)
}

// MinSellPrice returns the smallest price p such that selling the position
// at p clears the minimum profit margin net of both the buy and sell fee:
//
//	qty*p*(1-fee) - qty*buy*(1+fee) >= margin*qty*buy
//
// qty cancels, leaving p >= buy*(1+fee+margin)/(1-fee). The division is an
// exact ceiling at the configured precision: rounding down anywhere here
// would silently violate the margin contract.
func (c *Calculator) MinSellPrice(buyPrice decimal.Decimal) decimal.Decimal {
	num := buyPrice.Mul(one.Add(c.feeRate).Add(c.minMargin))
	den := one.Sub(c.feeRate)

	q, r := num.QuoRem(den, c.precision)
	if !r.IsZero() {
		q = q.Add(decimal.New(1, -c.precision))
	}
	return q
}

// SafetyExitPrice returns buyPrice*(1-safetyThreshold) rounded down. The
// protective floor may only err toward triggering earlier than configured,
// never later.
func (c *Calculator) SafetyExitPrice(buyPrice decimal.Decimal) decimal.Decimal {
	return buyPrice.Mul(one.Sub(c.safetyThreshold)).RoundFloor(c.precision)
}

// FloorToStep rounds qty down to a multiple of the exchange lot step.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	return qty.Sub(qty.Mod(step))
}

// QuantizeToTick rounds price down to a multiple of the exchange tick size.
func QuantizeToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	return price.Sub(price.Mod(tick))
}

// CeilToTick rounds price up to a multiple of the exchange tick size. Used
// for sell prices, where rounding down could undercut the minimum margin.
func CeilToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	rem := price.Mod(tick)
	if rem.IsZero() {
		return price
	}
	return price.Sub(rem).Add(tick)
}
