package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	big10    = big.NewInt(10)
	bpsScale = big.NewInt(10000)
)

// Pow10 returns 10^n as a new big.Int
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big10, big.NewInt(int64(n)), nil)
}

// MulDiv returns x*y/z truncated toward zero. z must be non-zero.
func MulDiv(x, y, z *big.Int) *big.Int {
	r := new(big.Int).Mul(x, y)
	return r.Quo(r, z)
}

// MulBps returns amount*bps/10000
func MulBps(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), bpsScale)
}

// MulPercent returns amount*pct/100
func MulPercent(amount *big.Int, pct uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(pct), big.NewInt(100))
}

// Min returns the smaller of x and y. Neither argument is copied.
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// IsPositive reports whether x is non-nil and greater than zero
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// ToDecimal converts a raw token amount into human units
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal converts a human amount into the token's smallest unit, truncating
// any remaining fraction toward zero
func FromDecimal(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}
