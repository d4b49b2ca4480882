package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name           string
		amount         uint64
		feeBps         uint64
		fee            uint64
		merchantAmount uint64
	}{
		{"2.5 percent of one unit", 1_000_000, 250, 25_000, 975_000},
		{"zero fee", 1_000_000, 0, 0, 1_000_000},
		{"max fee 10 percent", 1_000_000, 1000, 100_000, 900_000},
		{"floor rounding", 399, 250, 9, 390},
		{"fee rounds to zero", 39, 250, 0, 39},
		{"zero amount", 0, 250, 0, 0},
		{"largest amount without overflow", math.MaxUint64 / 1000, 1000, (math.MaxUint64 / 1000 * 1000) / 10_000, math.MaxUint64/1000 - (math.MaxUint64/1000*1000)/10_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, merchantAmount, err := SplitFee(tt.amount, tt.feeBps)
			require.NoError(t, err)
			assert.Equal(t, tt.fee, fee)
			assert.Equal(t, tt.merchantAmount, merchantAmount)
			assert.Equal(t, tt.amount, fee+merchantAmount)
		})
	}
}

func TestSplitFee_ConservesAmount(t *testing.T) {
	amounts := []uint64{1, 7, 10_000, 12_345_678, 999_999_999_999, math.MaxUint64 / 10_000}
	for _, amount := range amounts {
		for bps := uint64(0); bps <= MaxFeeBps; bps += 37 {
			fee, merchantAmount, err := SplitFee(amount, bps)
			require.NoError(t, err)
			assert.Equal(t, amount, fee+merchantAmount)
			assert.Equal(t, amount*bps/BpsDenominator, fee)
		}
	}
}

func TestSplitFee_Overflow(t *testing.T) {
	_, _, err := SplitFee(math.MaxUint64, 250)
	assert.ErrorIs(t, err, ErrOverflow)

	_, _, err = SplitFee(math.MaxUint64/1000+1, 1000)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := CheckedAdd(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	diff, err := CheckedSub(5, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), diff)

	_, err = CheckedSub(4, 5)
	assert.ErrorIs(t, err, ErrOverflow)

	product, err := CheckedMul(1<<32, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63), product)

	_, err = CheckedMul(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSaturatingSub(t *testing.T) {
	assert.Equal(t, uint64(3), SaturatingSub(5, 2))
	assert.Equal(t, uint64(0), SaturatingSub(2, 5))
	assert.Equal(t, uint64(0), SaturatingSub(0, math.MaxUint64))
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{1_500_000, 6, "1.500000"},
		{1, 6, "0.000001"},
		{0, 6, "0.000000"},
		{math.MaxUint64, 6, "18446744073709.551615"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnits(tt.amount, tt.decimals))
		})
	}
}
