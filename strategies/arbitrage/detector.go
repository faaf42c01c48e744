package arbitrage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrMalformedQuote marks a quote that cannot be compared
var ErrMalformedQuote = errors.New("malformed quote")

var (
	hundred     = decimal.NewFromInt(100)
	tenThousand = decimal.NewFromInt(10000)
	two         = decimal.NewFromInt(2)
)

// Detector compares every pair of quotes for a token pair
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a new opportunity detector
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect returns every opportunity with positive gross profit, best first.
// Quotes that cannot be compared are skipped.
func (d *Detector) Detect(quotes []types.PoolQuote) []types.Opportunity {
	var opportunities []types.Opportunity

	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			opp, ok, err := Compare(quotes[i], quotes[j])
			if err != nil {
				d.logger.Debug("Skipping quote pair",
					zap.String("pool_a", quotes[i].Pool.Hex()),
					zap.String("pool_b", quotes[j].Pool.Hex()),
					zap.Error(err))
				continue
			}
			if ok {
				opportunities = append(opportunities, opp)
			}
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].GrossProfitPercent.GreaterThan(opportunities[j].GrossProfitPercent)
	})

	return opportunities
}

// Compare evaluates a single pair of quotes. ok is true only when gross profit is positive.
//
//	priceDiffPercent   = |p1 - p2| / avg(p1, p2) * 100
//	feePercent         = (fee1 + fee2) / 100 / 100
//	grossProfitPercent = priceDiffPercent - feePercent
func Compare(a, b types.PoolQuote) (opp types.Opportunity, ok bool, err error) {
	if !a.SamePair(b) {
		return opp, false, fmt.Errorf("%w: quotes are for different pairs", ErrMalformedQuote)
	}
	if !a.Price.IsPositive() || !b.Price.IsPositive() {
		return opp, false, fmt.Errorf("%w: non-positive price", ErrMalformedQuote)
	}

	avg := a.Price.Add(b.Price).Div(two)
	diff := a.Price.Sub(b.Price).Abs().Div(avg).Mul(hundred)
	fee := decimal.NewFromInt(int64(a.FeeTier) + int64(b.FeeTier)).Div(tenThousand)
	gross := diff.Sub(fee)

	if !gross.IsPositive() {
		return opp, false, nil
	}

	buy, sell := a, b
	if b.Price.LessThan(a.Price) {
		buy, sell = b, a
	}

	return types.Opportunity{
		Buy:                buy,
		Sell:               sell,
		PriceDiffPercent:   diff,
		FeePercent:         fee,
		GrossProfitPercent: gross,
	}, true, nil
}
