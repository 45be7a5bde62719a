package math

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrOverflowInt64  = errors.New("int64 overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// SafeAdd adds two int64 integers. The second return value reports an
// overflow.
func SafeAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return -1, true
	} else if b < 0 && a < math.MinInt64-b {
		return -1, true
	}
	return a + b, false
}

// SafeSub subtracts b from a. The second return value reports an overflow.
func SafeSub(a, b int64) (int64, bool) {
	if b > 0 && a < math.MinInt64+b {
		return -1, true
	} else if b < 0 && a > math.MaxInt64+b {
		return -1, true
	}
	return a - b, false
}

// SafeMul multiplies two int64 integers. The second return value reports an
// overflow.
func SafeMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	absOfB := b
	if b < 0 {
		absOfB = -b
	}

	absOfA := a
	if a < 0 {
		absOfA = -a
	}

	if absOfA < 0 || absOfB < 0 {
		return -1, true
	}

	if absOfA > math.MaxInt64/absOfB {
		return -1, true
	}

	return a * b, false
}

// MulDivFloor returns floor(a*b/c) for non-negative operands without an
// intermediate overflow.
func MulDivFloor(a, b, c int64) (int64, error) {
	q, _, err := mulDiv(a, b, c)
	return q, err
}

// MulDivCeil returns ceil(a*b/c) for non-negative operands without an
// intermediate overflow.
func MulDivCeil(a, b, c int64) (int64, error) {
	q, r, err := mulDiv(a, b, c)
	if err != nil {
		return 0, err
	}
	if r.Sign() > 0 {
		if q == math.MaxInt64 {
			return 0, ErrOverflowInt64
		}
		q++
	}
	return q, nil
}

func mulDiv(a, b, c int64) (int64, decimal.Decimal, error) {
	if c == 0 {
		return 0, decimal.Zero, ErrDivisionByZero
	}
	q, r := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)).QuoRem(decimal.NewFromInt(c), 0)
	if q.GreaterThan(maxInt64) || q.LessThan(minInt64) {
		return 0, decimal.Zero, ErrOverflowInt64
	}
	return q.IntPart(), r, nil
}

// Floor rounds d towards negative infinity and converts it to int64.
func Floor(d decimal.Decimal) (int64, error) {
	f := d.Floor()
	if f.GreaterThan(maxInt64) || f.LessThan(minInt64) {
		return 0, ErrOverflowInt64
	}
	return f.IntPart(), nil
}

// Ceil rounds d towards positive infinity and converts it to int64.
func Ceil(d decimal.Decimal) (int64, error) {
	c := d.Ceil()
	if c.GreaterThan(maxInt64) || c.LessThan(minInt64) {
		return 0, ErrOverflowInt64
	}
	return c.IntPart(), nil
}

// MinInt64 returns the minimum of two int64 integers.
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// MaxInt64 returns the maximum of two int64 integers.
func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// AbsInt64 returns |a|.
func AbsInt64(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}
