package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToDec(t *testing.T) {
	dec, err := Float64ToDec(1234.5678)
	require.NoError(t, err)
	assert.Equal(t, "1234.567800000000000000", dec.String())

	dec, err = Float64ToDec(-0.5)
	require.NoError(t, err)
	assert.True(t, dec.IsNegative())

	_, err = Float64ToDec(math.NaN())
	assert.ErrorIs(t, err, ErrNotFinite)

	_, err = Float64ToDec(math.Inf(1))
	assert.ErrorIs(t, err, ErrNotFinite)
}

func TestDecToFloat64Rounds(t *testing.T) {
	v, err := DecToFloat64(sdkmath.LegacyMustNewDecFromStr("10.126"), 2)
	require.NoError(t, err)
	assert.Equal(t, 10.13, v)

	v, err = DecToFloat64(sdkmath.LegacyMustNewDecFromStr("7"), 2)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestUsdPercentOf(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		percent float64
		want    float64
	}{
		{"quarter", 10000, 25, 2500},
		{"thirds round to cents", 100, 33, 33},
		{"fractional amount", 1234.56, 17, 209.88},
		{"zero amount", 0, 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UsdPercentOf(tt.amount, tt.percent)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := UsdPercentOf(-1, 10)
	assert.ErrorIs(t, err, ErrAmountNegative)
}

func TestSplitsAddUpToTotal(t *testing.T) {
	total := 98765.43
	sum := sdkmath.LegacyZeroDec()
	for _, pct := range []float64{37, 28, 21, 14} {
		part, err := PercentOf(total, pct)
		require.NoError(t, err)
		sum = sum.Add(part)
	}
	got, err := DecToFloat64(sum, UsdPrecision)
	require.NoError(t, err)
	assert.Equal(t, total, got)
}

func TestRoundAndClamp(t *testing.T) {
	assert.Equal(t, 19.0, Round(19.0000001, 6))
	assert.Equal(t, 1.23, Round(1.234, 2))
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
	assert.True(t, IsFinite(1))
	assert.False(t, IsFinite(math.NaN()))
}
