package pricing

import (
	"errors"
	"math/big"

	"github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/shopspring/decimal"
)

// pricePrecision is the number of decimal places kept when dividing by 2^192
const pricePrecision = 36

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// ErrZeroSqrtPrice is returned for an uninitialised pool
var ErrZeroSqrtPrice = errors.New("sqrt price is zero")

// PriceFromSqrtX96 converts a Q64.96 square-root price into the human price of token0
// in token1: (sqrtPriceX96 / 2^96)^2 * 10^(decimals0 - decimals1)
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, ErrZeroSqrtPrice
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Set(q192)
	if decimals0 >= decimals1 {
		num.Mul(num, math.Pow10(decimals0-decimals1))
	} else {
		den.Mul(den, math.Pow10(decimals1-decimals0))
	}

	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), pricePrecision), nil
}
