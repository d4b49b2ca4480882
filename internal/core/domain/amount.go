package domain

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned when 64-bit unsigned arithmetic would wrap.
var ErrOverflow = errors.New("arithmetic overflow")

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// SaturatingSub returns a-b, or 0 when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SplitFee divides a gross amount into the platform fee and the merchant
// share: fee = floor(amount*feeBps/10000), merchantAmount = amount-fee.
func SplitFee(amount, feeBps uint64) (fee, merchantAmount uint64, err error) {
	product, err := CheckedMul(amount, feeBps)
	if err != nil {
		return 0, 0, fmt.Errorf("fee for amount %d at %d bps: %w", amount, feeBps, err)
	}
	fee = product / BpsDenominator
	merchantAmount, err = CheckedSub(amount, fee)
	if err != nil {
		return 0, 0, fmt.Errorf("merchant share of %d: %w", amount, err)
	}
	return fee, merchantAmount, nil
}

// FormatUnits renders a smallest-unit amount as a fixed-point decimal
// string, e.g. 1500000 with 6 decimals -> "1.500000". Display only.
func FormatUnits(amount uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
	return d.StringFixed(int32(decimals))
}
