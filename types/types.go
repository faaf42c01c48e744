package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolQuote is one venue/pool/fee-tier observation taken during a polling cycle
type PoolQuote struct {
	Venue   string
	Pool    common.Address
	FeeTier uint32 // hundredths of a basis point, as stored by the pool (500 = 5 bps)

	Token0         common.Address
	Token1         common.Address
	Token0Decimals uint8
	Token1Decimals uint8

	// Price of token0 expressed in token1, adjusted for decimals
	Price     decimal.Decimal
	Liquidity *big.Int
	Tick      int64
	Timestamp time.Time
}

// SamePair reports whether both quotes describe the same ordered token pair
func (q PoolQuote) SamePair(other PoolQuote) bool {
	return q.Token0 == other.Token0 && q.Token1 == other.Token1
}

// Side identifies one half of a two-venue trade
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opportunity is a price divergence between two quotes of the same pair.
// Buy.Price is always strictly lower than Sell.Price.
type Opportunity struct {
	Buy                PoolQuote
	Sell               PoolQuote
	PriceDiffPercent   decimal.Decimal
	FeePercent         decimal.Decimal
	GrossProfitPercent decimal.Decimal
}

// BorrowToken is the token lent by the flashloan: the quote token of the pair
func (o Opportunity) BorrowToken() common.Address {
	return o.Buy.Token1
}

// BorrowDecimals returns the decimals of the borrowed token
func (o Opportunity) BorrowDecimals() uint8 {
	return o.Buy.Token1Decimals
}

// IntermediateToken is the token held between the two legs
func (o Opportunity) IntermediateToken() common.Address {
	return o.Buy.Token0
}

// SizingResult is the borrow size chosen for an opportunity
type SizingResult struct {
	OptimalAmount    *big.Int
	MaxFlashloan     *big.Int
	BindingLiquidity *big.Int
	BindingSide      Side
}

// ProfitAnalysis is the modeled outcome of executing an opportunity at a given size.
// USD amounts are in the settlement currency.
type ProfitAnalysis struct {
	BorrowAmount *big.Int
	BorrowUSD    decimal.Decimal

	GrossProfit      decimal.Decimal
	FlashloanFee     decimal.Decimal
	BuySlippageBps   decimal.Decimal
	SellSlippageBps  decimal.Decimal
	BuySlippageCost  decimal.Decimal
	SellSlippageCost decimal.Decimal
	GasCost          decimal.Decimal

	NetProfitBeforeGas decimal.Decimal
	NetProfitAfterGas  decimal.Decimal
	ProfitBps          decimal.Decimal

	// Net profit after gas in the borrowed token's smallest unit, truncated toward zero
	NetProfitAfterGasRaw *big.Int

	BuySlippageOK  bool
	SellSlippageOK bool
	MeetsMinProfit bool
	MeetsMinBps    bool
}

// TotalSlippageCost is the modeled slippage of both legs
func (p ProfitAnalysis) TotalSlippageCost() decimal.Decimal {
	return p.BuySlippageCost.Add(p.SellSlippageCost)
}

// SlippageAcceptable is true when both legs stay within the slippage cap
func (p ProfitAnalysis) SlippageAcceptable() bool {
	return p.BuySlippageOK && p.SellSlippageOK
}

// Viable is the only verdict: every acceptability flag must hold
func (p ProfitAnalysis) Viable() bool {
	return p.SlippageAcceptable() && p.MeetsMinProfit && p.MeetsMinBps
}
