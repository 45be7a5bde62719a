package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "90000000.00000000", FormatAmount(9000000000000000, true))
	require.Equal(t, "0.00000001", FormatAmount(1, true))
	require.Equal(t, "-44.60392156", FormatAmount(-4460392156, true))
	require.Equal(t, "+44.60392156", FormatSigned(4460392156, true))
	require.Equal(t, "3000", FormatAmount(3000, false))
}

func TestParseAmount(t *testing.T) {
	testCases := map[string]struct {
		in        string
		divisible bool
		want      int64
		expectErr bool
	}{
		"divisible":            {"2000", true, 200000000000, false},
		"divisible fraction":   {"1000000.98765432", true, 100000098765432, false},
		"too many decimals":    {"0.000000001", true, 0, true},
		"indivisible":          {"3000", false, 3000, false},
		"indivisible fraction": {"1.5", false, 0, true},
		"negative":             {"-1", true, 0, true},
		"garbage":              {"abc", true, 0, true},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			got, err := ParseAmount(tc.in, tc.divisible)
			if tc.expectErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFixedPointPrice(t *testing.T) {
	p := decimal.RequireFromString("80.5")
	v, err := PriceToFixed(p)
	require.NoError(t, err)
	require.EqualValues(t, 8050000000, v)
	require.True(t, p.Equal(PriceFromFixed(v)))
	require.Equal(t, "80.50000000", FormatPrice(PriceFromFixed(v)))

	_, err = PriceToFixed(decimal.RequireFromString("0.000000001"))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSystemAddresses(t *testing.T) {
	require.True(t, FeeCacheAddress.IsSystem())
	require.Equal(t, Address("tl:insurance:5"), InsuranceAddress(5))
	require.True(t, SettlementAddress(5).IsSystem())
	require.False(t, Address("LZ3fH8tH8Vt1Dz1KqAwB1Dz7E4hN5oQ9pE").IsSystem())
}
