package pricing

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqrtPriceFor returns floor(sqrt(raw * 2^192)) for a raw (undecimalised) price num/den
func sqrtPriceFor(num, den int64) *big.Int {
	v := new(big.Int).Lsh(big.NewInt(num), 192)
	v.Quo(v, big.NewInt(den))
	return v.Sqrt(v)
}

func TestPriceFromSqrtX96(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	tests := []struct {
		name      string
		sqrt      *big.Int
		decimals0 uint8
		decimals1 uint8
		want      string
		tolerance string
	}{
		{
			name: "unit price",
			sqrt: q96,
			want: "1",
		},
		{
			name: "double root is quadruple price",
			sqrt: new(big.Int).Lsh(q96, 1),
			want: "4",
		},
		{
			name:      "equal decimals 3000",
			sqrt:      sqrtPriceFor(3000, 1),
			want:      "3000",
			tolerance: "0.000000001",
		},
		{
			// 1 WETH (18) = 3000 USDC (6): raw price 3000e6/1e18
			name:      "token0 has more decimals",
			sqrt:      sqrtPriceFor(3000, 1_000_000_000_000),
			decimals0: 18,
			decimals1: 6,
			want:      "3000",
			tolerance: "0.000000001",
		},
		{
			// 1 USDC (6) = 1/3000 WETH (18): raw price 1e18/(3000*1e6)
			name:      "token0 has fewer decimals",
			sqrt:      sqrtPriceFor(1_000_000_000_000, 3000),
			decimals0: 6,
			decimals1: 18,
			want:      "0.000333333333333333",
			tolerance: "0.000000000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceFromSqrtX96(tt.sqrt, tt.decimals0, tt.decimals1)
			require.NoError(t, err)

			want := decimal.RequireFromString(tt.want)
			if tt.tolerance == "" {
				assert.True(t, got.Equal(want), "got %s want %s", got, want)
				return
			}
			diff := got.Sub(want).Abs()
			assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString(tt.tolerance)), "got %s want %s", got, want)
		})
	}
}

func TestPriceFromSqrtX96Zero(t *testing.T) {
	_, err := PriceFromSqrtX96(big.NewInt(0), 18, 18)
	assert.ErrorIs(t, err, ErrZeroSqrtPrice)

	_, err = PriceFromSqrtX96(nil, 18, 18)
	assert.ErrorIs(t, err, ErrZeroSqrtPrice)
}

func BenchmarkPriceFromSqrtX96(b *testing.B) {
	sqrt := sqrtPriceFor(3000, 1_000_000_000_000)
	for i := 0; i < b.N; i++ {
		_, _ = PriceFromSqrtX96(sqrt, 18, 6)
	}
}
