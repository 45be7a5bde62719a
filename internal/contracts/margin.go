package contracts

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

// divPrecision bounds the digits kept by the divisions in price thresholds.
const divPrecision = 16

var maxUnits = decimal.NewFromInt(math.MaxInt64)

func (c *Contract) scale() decimal.Decimal {
	return types.TokensToUnits(decimal.NewFromInt(1), c.CollateralDivisible)
}

// RequiredMargin is the collateral, in base units, backing qty contracts
// opened at price with the given leverage. Linear contracts need
// notional*price*requirement/leverage per contract, inverse ones
// notional/price*requirement/leverage. The result is rounded up.
func (c *Contract) RequiredMargin(qty int64, price decimal.Decimal, leverage int64) (int64, error) {
	if qty < 0 || leverage <= 0 || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: qty %d price %s leverage %d", ErrInvalidOrder, qty, price, leverage)
	}
	num := decimal.NewFromInt(qty).Mul(c.NotionalSize).Mul(c.MarginRequirement).Mul(c.scale())
	den := decimal.NewFromInt(leverage)
	if c.Inverse {
		den = den.Mul(price)
	} else {
		num = num.Mul(price)
	}
	q, r := num.QuoRem(den, 0)
	if r.Sign() > 0 {
		q = q.Add(decimal.NewFromInt(1))
	}
	return tlmath.Floor(q)
}

// pnl is the exact profit, in base units, of a signed position moving from
// one price to another. Inverse contracts take the opposite sign.
func (c *Contract) pnl(amount int64, from, to decimal.Decimal) decimal.Decimal {
	d := to.Sub(from).Mul(decimal.NewFromInt(amount)).Mul(c.NotionalSize).Mul(c.scale())
	if c.Inverse {
		return d.Neg()
	}
	return d
}

// UnrealizedPnL of a position at the current mark price, in base units.
// Losses round away from zero as they do when settled.
func (c *Contract) UnrealizedPnL(p Position) int64 {
	if p.Amount == 0 || c.MarkPrice.IsZero() {
		return 0
	}
	v, err := tlmath.Floor(c.pnl(p.Amount, p.EntryPrice, c.MarkPrice))
	if err != nil {
		return 0
	}
	return v
}

// lossOnFall reports whether the position loses value when the price falls.
func (c *Contract) lossOnFall(p Position) bool {
	return (p.Amount > 0) != c.Inverse
}

// bankruptcyDistance is how far the price may move against a position
// before its initial margin is gone.
func (c *Contract) bankruptcyDistance(p Position) decimal.Decimal {
	lev := decimal.NewFromInt(p.Leverage)
	if c.Inverse {
		return c.MarginRequirement.DivRound(p.EntryPrice.Mul(lev), divPrecision)
	}
	return p.EntryPrice.Mul(c.MarginRequirement).DivRound(lev, divPrecision)
}

func (c *Contract) priceAgainst(p Position, dist decimal.Decimal) decimal.Decimal {
	if c.lossOnFall(p) {
		return p.EntryPrice.Sub(dist)
	}
	return p.EntryPrice.Add(dist)
}

// BankruptcyPrice is the mark at which the position's initial margin is
// fully consumed. It may be zero or negative for positions that cannot go
// bankrupt.
func (c *Contract) BankruptcyPrice(p Position) decimal.Decimal {
	return c.priceAgainst(p, c.bankruptcyDistance(p))
}

// LiquidationPrice lies ratio of the way from the entry price to the
// bankruptcy price.
func (c *Contract) LiquidationPrice(p Position, ratio decimal.Decimal) decimal.Decimal {
	return c.priceAgainst(p, c.bankruptcyDistance(p).Mul(ratio))
}

// crossed reports whether mark has reached threshold on the losing side of
// the position.
func (c *Contract) crossed(p Position, mark, threshold decimal.Decimal) bool {
	if threshold.Sign() <= 0 {
		return false
	}
	if c.lossOnFall(p) {
		return mark.LessThanOrEqual(threshold)
	}
	return mark.GreaterThanOrEqual(threshold)
}

// checkExposure fails when exposure contracts valued at any of prices, or
// margined at them, would not fit in int64 base units. Settlement moves at
// most that value, so a price accepted here can always be settled.
func (c *Contract) checkExposure(exposure decimal.Decimal, prices ...decimal.Decimal) error {
	value := exposure.Mul(c.NotionalSize).Mul(c.scale())
	if c.MarginRequirement.GreaterThan(decimal.NewFromInt(1)) {
		value = value.Mul(c.MarginRequirement)
	}
	for _, price := range prices {
		if price.Sign() <= 0 {
			continue
		}
		if value.Mul(price).GreaterThan(maxUnits) ||
			(c.Inverse && value.DivRound(price, 0).GreaterThan(maxUnits)) {
			return fmt.Errorf("%w: %s with %s contracts open", ErrPriceOutOfRange, price, exposure)
		}
	}
	return nil
}

// exposure is the sum of all position sizes of c after qty more contracts
// change hands.
func (c *Contract) exposure(qty int64) decimal.Decimal {
	return decimal.NewFromInt(c.OpenInterest).Add(decimal.NewFromInt(qty)).Mul(decimal.NewFromInt(2))
}

func mustUnits(v int64, err error) int64 {
	if err != nil {
		panic(fmt.Sprintf("contracts: amount out of range: %v", err))
	}
	return v
}
