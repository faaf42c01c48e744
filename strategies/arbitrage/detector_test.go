package arbitrage

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	weth = common.HexToAddress("0x0000000000000000000000000000000000000E01")
	usdc = common.HexToAddress("0x0000000000000000000000000000000000000F02")
)

func quote(venue string, pool int64, price string, fee uint32, liquidity int64) types.PoolQuote {
	return types.PoolQuote{
		Venue:          venue,
		Pool:           common.BigToAddress(big.NewInt(pool)),
		FeeTier:        fee,
		Token0:         weth,
		Token1:         usdc,
		Token0Decimals: 18,
		Token1Decimals: 6,
		Price:          decimal.RequireFromString(price),
		Liquidity:      big.NewInt(liquidity),
	}
}

func approx(t *testing.T, want string, got decimal.Decimal, tolerance string) {
	t.Helper()
	diff := got.Sub(decimal.RequireFromString(want)).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString(tolerance)), "got %s want %s", got, want)
}

func TestCompareScenarios(t *testing.T) {
	t.Run("spread below fees", func(t *testing.T) {
		a := quote("uni", 1, "3000", 500, 1e12)
		b := quote("sushi", 2, "3005", 3000, 1e12)

		_, ok, err := Compare(a, b)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("spread above fees", func(t *testing.T) {
		a := quote("uni", 1, "3050", 500, 1e12)
		b := quote("sushi", 2, "3000", 500, 1e12)

		opp, ok, err := Compare(a, b)
		require.NoError(t, err)
		require.True(t, ok)

		approx(t, "1.6528925619834711", opp.PriceDiffPercent, "0.0000001")
		approx(t, "0.1", opp.FeePercent, "0")
		approx(t, "1.5528925619834711", opp.GrossProfitPercent, "0.0000001")
		assert.Equal(t, "sushi", opp.Buy.Venue)
		assert.Equal(t, "uni", opp.Sell.Venue)
		assert.Equal(t, usdc, opp.BorrowToken())
		assert.Equal(t, weth, opp.IntermediateToken())
	})

	t.Run("fee percent of mixed tiers", func(t *testing.T) {
		a := quote("uni", 1, "3000", 500, 1e12)
		b := quote("uni", 2, "4000", 3000, 1e12)

		opp, ok, err := Compare(a, b)
		require.NoError(t, err)
		require.True(t, ok)
		approx(t, "0.35", opp.FeePercent, "0")
	})
}

func TestCompareMalformed(t *testing.T) {
	good := quote("uni", 1, "3000", 500, 1e12)

	zero := quote("uni", 2, "0", 500, 1e12)
	_, _, err := Compare(good, zero)
	assert.ErrorIs(t, err, ErrMalformedQuote)

	other := quote("uni", 3, "3100", 500, 1e12)
	other.Token1 = common.HexToAddress("0x0000000000000000000000000000000000000D03")
	_, _, err = Compare(good, other)
	assert.ErrorIs(t, err, ErrMalformedQuote)
}

func TestDetectSortsByGrossProfit(t *testing.T) {
	detector := NewDetector(zaptest.NewLogger(t))
	quotes := []types.PoolQuote{
		quote("uni", 1, "3000", 500, 1e12),
		quote("uni", 2, "3030", 500, 1e12),
		quote("sushi", 3, "3090", 500, 1e12),
		quote("sushi", 4, "0", 500, 1e12), // malformed, skipped
	}

	opps := detector.Detect(quotes)
	require.Len(t, opps, 3)

	for i := 1; i < len(opps); i++ {
		assert.True(t, opps[i-1].GrossProfitPercent.GreaterThanOrEqual(opps[i].GrossProfitPercent))
	}
	assert.Equal(t, common.BigToAddress(big.NewInt(1)), opps[0].Buy.Pool)
	assert.Equal(t, common.BigToAddress(big.NewInt(3)), opps[0].Sell.Pool)
}

func TestDetectNothingForSingleQuote(t *testing.T) {
	detector := NewDetector(zaptest.NewLogger(t))
	assert.Empty(t, detector.Detect(nil))
	assert.Empty(t, detector.Detect([]types.PoolQuote{quote("uni", 1, "3000", 500, 1)}))
}

func TestCompareProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tiers := []uint32{100, 500, 3000, 10000}

	for i := 0; i < 2000; i++ {
		p1 := decimal.NewFromFloat(1 + rng.Float64()*5000).Round(6)
		p2 := p1.Mul(decimal.NewFromFloat(0.97 + rng.Float64()*0.06)).Round(6)
		a := quote("a", 1, p1.String(), tiers[rng.Intn(len(tiers))], 1e12)
		b := quote("b", 2, p2.String(), tiers[rng.Intn(len(tiers))], 1e12)

		opp, ok, err := Compare(a, b)
		require.NoError(t, err)

		avg := p1.Add(p2).Div(two)
		gross := p1.Sub(p2).Abs().Div(avg).Mul(hundred).
			Sub(decimal.NewFromInt(int64(a.FeeTier + b.FeeTier)).Div(tenThousand))

		assert.Equal(t, gross.IsPositive(), ok, "p1=%s p2=%s", p1, p2)
		if ok {
			assert.True(t, opp.Buy.Price.LessThan(opp.Sell.Price))
			assert.True(t, opp.GrossProfitPercent.IsPositive())
		}
	}
}

func BenchmarkDetect(b *testing.B) {
	detector := NewDetector(zaptest.NewLogger(b))
	var quotes []types.PoolQuote
	for i := 0; i < 8; i++ {
		quotes = append(quotes, quote("v", int64(i), decimal.NewFromInt(3000+int64(i*7)).String(), 500, 1e12))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(quotes)
	}
}
