package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// COIN is the number of base units in one token of a divisible property.
// Prices and base-currency amounts use the same scale.
const COIN = 100000000

// PriceDecimals is the number of decimals carried by prices on the wire.
const PriceDecimals = 8

var (
	ErrInvalidAmount = errors.New("invalid amount")

	coin = decimal.NewFromInt(COIN)
)

// FormatAmount renders base units as the display string of a property,
// e.g. 9000000000000000 units of a divisible property as
// "90000000.00000000".
func FormatAmount(amount int64, divisible bool) string {
	if !divisible {
		return fmt.Sprintf("%d", amount)
	}
	return decimal.New(amount, -PriceDecimals).StringFixed(PriceDecimals)
}

// FormatSigned is FormatAmount with an explicit sign for non-negative values.
func FormatSigned(amount int64, divisible bool) string {
	s := FormatAmount(amount, divisible)
	if amount >= 0 {
		return "+" + s
	}
	return s
}

// ParseAmount converts a display string into base units. Divisible amounts
// may carry at most 8 decimals and indivisible amounts none.
func ParseAmount(s string, divisible bool) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if divisible {
		d = d.Mul(coin)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has too many decimals", ErrInvalidAmount, s)
	}
	if d.Sign() < 0 || d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// UnitsToTokens converts base units to a token quantity.
func UnitsToTokens(amount int64, divisible bool) decimal.Decimal {
	if divisible {
		return decimal.New(amount, -PriceDecimals)
	}
	return decimal.NewFromInt(amount)
}

// TokensToUnits scales a token quantity to base units without rounding.
func TokensToUnits(d decimal.Decimal, divisible bool) decimal.Decimal {
	if divisible {
		return d.Mul(coin)
	}
	return d
}

// PriceFromFixed decodes an 8-decimal fixed point wire value.
func PriceFromFixed(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -PriceDecimals)
}

// PriceToFixed encodes a price as an 8-decimal fixed point wire value. It
// fails for negative prices or prices with more than 8 decimals.
func PriceToFixed(d decimal.Decimal) (uint64, error) {
	scaled := d.Mul(coin)
	if d.Sign() < 0 || !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: price %s", ErrInvalidAmount, d)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: price %s out of range", ErrInvalidAmount, d)
	}
	return bi.Uint64(), nil
}

// FormatPrice renders a price with 8 decimals.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PriceDecimals)
}
