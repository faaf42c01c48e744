package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/shopspring/decimal"
)

var (
	one         = decimal.NewFromInt(1)
	feeScale    = decimal.NewFromInt(1_000_000)
	tenThousand = decimal.NewFromInt(10000)
)

// BuilderConfig configures the transaction builder
type BuilderConfig struct {
	Lender common.Address
	// Routers maps a venue name to its swap router
	Routers map[string]common.Address
	// ProfitSafetyFraction is the share of the estimated net profit enforced on-chain
	ProfitSafetyFraction float64
	MaxSlippageBps       uint64
	PremiumBps           uint64
}

// Builder turns a viable candidate into executor call parameters
type Builder struct {
	lender         common.Address
	routers        map[string]common.Address
	safetyFraction decimal.Decimal
	maxSlippageBps uint64
	premiumBps     uint64
}

// NewBuilder creates a transaction builder
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Lender == (common.Address{}) {
		return nil, fmt.Errorf("lender address is required")
	}
	if len(cfg.Routers) == 0 {
		return nil, fmt.Errorf("at least one router is required")
	}
	if cfg.ProfitSafetyFraction <= 0 || cfg.ProfitSafetyFraction > 1 {
		return nil, fmt.Errorf("profit safety fraction must be in (0, 1], got %v", cfg.ProfitSafetyFraction)
	}
	if cfg.MaxSlippageBps >= 10000 {
		return nil, fmt.Errorf("max slippage must be below 10000 bps")
	}

	routers := make(map[string]common.Address, len(cfg.Routers))
	for name, addr := range cfg.Routers {
		routers[name] = addr
	}

	return &Builder{
		lender:         cfg.Lender,
		routers:        routers,
		safetyFraction: decimal.NewFromFloat(cfg.ProfitSafetyFraction),
		maxSlippageBps: cfg.MaxSlippageBps,
		premiumBps:     cfg.PremiumBps,
	}, nil
}

// WithPremiumBps returns a copy of the builder using a different flashloan premium
func (b *Builder) WithPremiumBps(bps uint64) *Builder {
	cp := *b
	cp.premiumBps = bps
	return &cp
}

// Build constructs the two-leg ArbitrageParams for a viable candidate:
//
//	leg 1: borrowed token -> intermediate token at the buy venue, full borrowed amount
//	leg 2: intermediate token -> borrowed token at the sell venue, whole balance,
//	       minAmountOut = borrowed + premium
//
// MinProfit is the safety fraction of the modeled net profit after gas.
func (b *Builder) Build(opp types.Opportunity, sizing types.SizingResult, analysis types.ProfitAnalysis) (ArbitrageParams, error) {
	var p ArbitrageParams

	if !analysis.Viable() {
		return p, ErrNotViable
	}
	amount := analysis.BorrowAmount
	if !math.IsPositive(amount) {
		return p, fmt.Errorf("%w: zero borrow amount", ErrNotViable)
	}
	if sizing.MaxFlashloan == nil || amount.Cmp(sizing.MaxFlashloan) > 0 {
		return p, ErrExceedsMaxFlashloan
	}
	if !math.IsPositive(analysis.NetProfitAfterGasRaw) {
		return p, fmt.Errorf("%w: no modeled profit", ErrNotViable)
	}

	buyRouter, ok := b.routers[opp.Buy.Venue]
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnknownVenue, opp.Buy.Venue)
	}
	sellRouter, ok := b.routers[opp.Sell.Venue]
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnknownVenue, opp.Sell.Venue)
	}

	leg1MinOut, err := b.buyMinOut(opp.Buy, amount)
	if err != nil {
		return p, err
	}

	owed := new(big.Int).Add(amount, math.MulBps(amount, b.premiumBps))
	minProfit := decimal.NewFromBigInt(analysis.NetProfitAfterGasRaw, 0).Mul(b.safetyFraction).Truncate(0).BigInt()

	p = ArbitrageParams{
		Lender:    b.lender,
		Asset:     opp.BorrowToken(),
		Amount:    new(big.Int).Set(amount),
		MinProfit: minProfit,
		Swaps: []SwapInstruction{
			{
				Router:       buyRouter,
				TokenIn:      opp.BorrowToken(),
				TokenOut:     opp.IntermediateToken(),
				Fee:          opp.Buy.FeeTier,
				AmountIn:     new(big.Int).Set(amount),
				MinAmountOut: leg1MinOut,
			},
			{
				Router:       sellRouter,
				TokenIn:      opp.IntermediateToken(),
				TokenOut:     opp.BorrowToken(),
				Fee:          opp.Sell.FeeTier,
				AmountIn:     new(big.Int),
				MinAmountOut: owed,
			},
		},
	}

	return p, p.Validate()
}

// buyMinOut is the intermediate-token output expected from spending amountIn of the
// quote token at the buy pool, net of the pool fee and the slippage cap
func (b *Builder) buyMinOut(q types.PoolQuote, amountIn *big.Int) (*big.Int, error) {
	if !q.Price.IsPositive() {
		return nil, fmt.Errorf("buy pool %s has no price", q.Pool.Hex())
	}

	out := math.ToDecimal(amountIn, q.Token1Decimals).Div(q.Price)
	out = out.Mul(one.Sub(decimal.NewFromInt(int64(q.FeeTier)).Div(feeScale)))
	out = out.Mul(one.Sub(decimal.NewFromInt(int64(b.maxSlippageBps)).Div(tenThousand)))

	return math.FromDecimal(out, q.Token0Decimals), nil
}
