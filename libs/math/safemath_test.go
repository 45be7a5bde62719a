package math_test

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tlmath "github.com/tradelayer/tradelayer/libs/math"
)

func TestSafeAdd(t *testing.T) {
	f := func(a, b int64) bool {
		c, overflow := tlmath.SafeAdd(a, b)
		return overflow || c == a+b
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}

	_, overflow := tlmath.SafeAdd(math.MaxInt64, 1)
	assert.True(t, overflow)
	_, overflow = tlmath.SafeSub(math.MinInt64, 1)
	assert.True(t, overflow)
}

func TestSafeMul(t *testing.T) {
	testCases := []struct {
		a        int64
		b        int64
		c        int64
		overflow bool
	}{
		0: {0, 0, 0, false},
		1: {1, 0, 0, false},
		2: {2, 3, 6, false},
		3: {2, -3, -6, false},
		4: {-2, -3, 6, false},
		5: {-2, 3, -6, false},
		6: {math.MaxInt64, 1, math.MaxInt64, false},
		7: {math.MaxInt64 / 2, 2, math.MaxInt64 - 1, false},
		8: {math.MaxInt64 / 2, 3, -1, true},
		9: {math.MaxInt64, 2, -1, true},
	}

	for i, tc := range testCases {
		c, overflow := tlmath.SafeMul(tc.a, tc.b)
		assert.Equal(t, tc.c, c, "#%d", i)
		assert.Equal(t, tc.overflow, overflow, "#%d", i)
	}
}

func TestMulDiv(t *testing.T) {
	a := int64(200000000000)
	_, err := tlmath.MulDivFloor(a, a, 7)
	require.ErrorIs(t, err, tlmath.ErrOverflowInt64)

	f, err := tlmath.MulDivFloor(a, 3, 7)
	require.NoError(t, err)
	require.EqualValues(t, 85714285714, f)

	c, err := tlmath.MulDivCeil(a, 3, 7)
	require.NoError(t, err)
	require.EqualValues(t, 85714285715, c)

	c, err = tlmath.MulDivCeil(10, 3, 5)
	require.NoError(t, err)
	require.EqualValues(t, 6, c)

	_, err = tlmath.MulDivCeil(1, 1, 0)
	require.ErrorIs(t, err, tlmath.ErrDivisionByZero)

	// operands whose product overflows int64 but whose quotient does not
	f, err = tlmath.MulDivFloor(math.MaxInt64, 4, 8)
	require.NoError(t, err)
	require.EqualValues(t, math.MaxInt64/2, f)
}

func TestFloorCeil(t *testing.T) {
	f, err := tlmath.Floor(decimal.RequireFromString("-1.5"))
	require.NoError(t, err)
	require.EqualValues(t, -2, f)

	c, err := tlmath.Ceil(decimal.RequireFromString("1.00000001"))
	require.NoError(t, err)
	require.EqualValues(t, 2, c)

	_, err = tlmath.Ceil(decimal.RequireFromString("1e30"))
	require.ErrorIs(t, err, tlmath.ErrOverflowInt64)
}
