package arbitrage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/shopspring/decimal"
)

var (
	ErrNoLiquidity       = errors.New("pool has no liquidity")
	ErrZeroAmount        = errors.New("trade size must be positive")
	ErrUnknownTokenPrice = errors.New("no reference price for token")
)

// CostConfig holds the thresholds and reference prices of the cost model
type CostConfig struct {
	FlashloanPremiumBps uint64
	MaxSlippageBps      uint64
	MinProfitUSD        decimal.Decimal
	MinProfitBps        decimal.Decimal
	GasUnits            uint64
	// Default gas price in wei, used when Analyze is given none
	GasPrice       *big.Int
	NativePriceUSD decimal.Decimal
	TokenPricesUSD map[common.Address]decimal.Decimal
}

// CostModel estimates flashloan fee, slippage and gas for a trade size
type CostModel struct {
	cfg CostConfig
}

// NewCostModel creates a cost model
func NewCostModel(cfg CostConfig) (*CostModel, error) {
	if cfg.MaxSlippageBps == 0 {
		return nil, fmt.Errorf("max slippage must be positive")
	}
	if cfg.GasPrice == nil || cfg.GasPrice.Sign() <= 0 {
		return nil, fmt.Errorf("gas price must be positive")
	}
	if !cfg.NativePriceUSD.IsPositive() {
		return nil, fmt.Errorf("native token price must be positive")
	}
	return &CostModel{cfg: cfg}, nil
}

// WithPremiumBps returns a copy of the model using a different flashloan premium
func (m *CostModel) WithPremiumBps(bps uint64) *CostModel {
	cfg := m.cfg
	cfg.FlashloanPremiumBps = bps
	return &CostModel{cfg: cfg}
}

// PremiumBps returns the flashloan premium in basis points
func (m *CostModel) PremiumBps() uint64 {
	return m.cfg.FlashloanPremiumBps
}

// MaxSlippageBps returns the per-side slippage cap
func (m *CostModel) MaxSlippageBps() uint64 {
	return m.cfg.MaxSlippageBps
}

// FeeTierMultiplier scales modeled impact: the lowest fee tiers hold tighter,
// more slippage-sensitive liquidity
func FeeTierMultiplier(fee uint32) int64 {
	switch fee {
	case 100:
		return 3
	case 500:
		return 2
	default:
		return 1
	}
}

// SlippageBps models price impact as tradeSize/liquidity*10000, scaled by fee tier
func SlippageBps(tradeSize, liquidity *big.Int, fee uint32) (decimal.Decimal, error) {
	if !math.IsPositive(liquidity) {
		return decimal.Zero, ErrNoLiquidity
	}
	ratio := decimal.NewFromBigInt(tradeSize, 0).Div(decimal.NewFromBigInt(liquidity, 0))
	return ratio.Mul(tenThousand).Mul(decimal.NewFromInt(FeeTierMultiplier(fee))), nil
}

// GasCostUSD converts the fixed gas estimate into the settlement currency
func (m *CostModel) GasCostUSD(gasPrice *big.Int) decimal.Decimal {
	if gasPrice == nil {
		gasPrice = m.cfg.GasPrice
	}
	native := decimal.NewFromBigInt(gasPrice, -18).Mul(decimal.NewFromInt(int64(m.cfg.GasUnits)))
	return native.Mul(m.cfg.NativePriceUSD)
}

// Analyze models executing opp with amount borrowed. A nil gasPrice uses the configured one.
func (m *CostModel) Analyze(opp types.Opportunity, amount, gasPrice *big.Int) (types.ProfitAnalysis, error) {
	var p types.ProfitAnalysis

	if !math.IsPositive(amount) {
		return p, ErrZeroAmount
	}
	price, ok := m.cfg.TokenPricesUSD[opp.BorrowToken()]
	if !ok || !price.IsPositive() {
		return p, fmt.Errorf("%w: %s", ErrUnknownTokenPrice, opp.BorrowToken().Hex())
	}

	buyBps, err := SlippageBps(amount, opp.Buy.Liquidity, opp.Buy.FeeTier)
	if err != nil {
		return p, fmt.Errorf("buy side %s: %w", opp.Buy.Pool.Hex(), err)
	}
	sellBps, err := SlippageBps(amount, opp.Sell.Liquidity, opp.Sell.FeeTier)
	if err != nil {
		return p, fmt.Errorf("sell side %s: %w", opp.Sell.Pool.Hex(), err)
	}

	borrowUSD := math.ToDecimal(amount, opp.BorrowDecimals()).Mul(price)
	maxSlippage := decimal.NewFromInt(int64(m.cfg.MaxSlippageBps))

	p.BorrowAmount = new(big.Int).Set(amount)
	p.BorrowUSD = borrowUSD
	p.GrossProfit = borrowUSD.Mul(opp.GrossProfitPercent).Div(hundred)
	p.FlashloanFee = borrowUSD.Mul(decimal.NewFromInt(int64(m.cfg.FlashloanPremiumBps))).Div(tenThousand)
	p.BuySlippageBps = buyBps
	p.SellSlippageBps = sellBps
	p.BuySlippageCost = borrowUSD.Mul(buyBps).Div(tenThousand)
	p.SellSlippageCost = borrowUSD.Mul(sellBps).Div(tenThousand)
	p.GasCost = m.GasCostUSD(gasPrice)

	p.NetProfitBeforeGas = p.GrossProfit.Sub(p.FlashloanFee).Sub(p.TotalSlippageCost())
	p.NetProfitAfterGas = p.NetProfitBeforeGas.Sub(p.GasCost)
	p.ProfitBps = p.NetProfitAfterGas.Div(borrowUSD).Mul(tenThousand)
	p.NetProfitAfterGasRaw = math.FromDecimal(p.NetProfitAfterGas.Div(price), opp.BorrowDecimals())

	p.BuySlippageOK = buyBps.LessThanOrEqual(maxSlippage)
	p.SellSlippageOK = sellBps.LessThanOrEqual(maxSlippage)
	p.MeetsMinProfit = p.NetProfitAfterGas.GreaterThanOrEqual(m.cfg.MinProfitUSD)
	p.MeetsMinBps = p.ProfitBps.GreaterThanOrEqual(m.cfg.MinProfitBps)

	return p, nil
}

// maxSizeWithinSlippage is the largest trade whose modeled slippage on the given
// side stays within the cap
func (m *CostModel) maxSizeWithinSlippage(q types.PoolQuote) *big.Int {
	if !math.IsPositive(q.Liquidity) {
		return new(big.Int)
	}
	num := new(big.Int).Mul(q.Liquidity, new(big.Int).SetUint64(m.cfg.MaxSlippageBps))
	den := big.NewInt(10000 * FeeTierMultiplier(q.FeeTier))
	return num.Quo(num, den)
}
