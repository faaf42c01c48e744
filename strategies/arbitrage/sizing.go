package arbitrage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"
)

// ErrSizeTooSmall is returned when the binding pool cannot support a non-zero trade
var ErrSizeTooSmall = errors.New("trade size rounds to zero")

const (
	// trialDivisor turns the maximum flashloan into the fraction-mode trial size
	trialDivisor = 10
	searchSteps  = 64
)

// Sizer picks the borrow amount for an opportunity. In fraction mode the trial size is
// maxFlashloan/10; in search mode it is the size maximising modeled net profit while
// both sides stay within the slippage cap. Either way the amount never exceeds
// maxFlashloan.
type Sizer struct {
	maxFlashloanPercent uint64
	mode                string
	cost                *CostModel
}

// NewSizer creates a sizer. cost is required only in search mode.
func NewSizer(maxFlashloanPercent uint64, mode string, cost *CostModel) (*Sizer, error) {
	if maxFlashloanPercent == 0 || maxFlashloanPercent > 100 {
		return nil, fmt.Errorf("max flashloan percent must be in (0, 100], got %d", maxFlashloanPercent)
	}
	switch mode {
	case config.SizingModeFraction:
	case config.SizingModeSearch:
		if cost == nil {
			return nil, fmt.Errorf("search sizing requires a cost model")
		}
	default:
		return nil, fmt.Errorf("unsupported sizing mode %q", mode)
	}
	return &Sizer{maxFlashloanPercent: maxFlashloanPercent, mode: mode, cost: cost}, nil
}

// Size computes the SizingResult for opp. gasPrice is only used in search mode.
func (s *Sizer) Size(opp types.Opportunity, gasPrice *big.Int) (types.SizingResult, error) {
	var r types.SizingResult

	buyLiq, sellLiq := opp.Buy.Liquidity, opp.Sell.Liquidity
	if !math.IsPositive(buyLiq) || !math.IsPositive(sellLiq) {
		return r, ErrNoLiquidity
	}

	r.BindingSide = types.SideBuy
	r.BindingLiquidity = new(big.Int).Set(buyLiq)
	if sellLiq.Cmp(buyLiq) < 0 {
		r.BindingSide = types.SideSell
		r.BindingLiquidity = new(big.Int).Set(sellLiq)
	}

	r.MaxFlashloan = math.MulPercent(r.BindingLiquidity, s.maxFlashloanPercent)

	switch s.mode {
	case config.SizingModeSearch:
		r.OptimalAmount = s.search(opp, r.MaxFlashloan, gasPrice)
	default:
		r.OptimalAmount = new(big.Int).Quo(r.MaxFlashloan, big.NewInt(trialDivisor))
	}

	if r.OptimalAmount.Sign() <= 0 {
		return r, ErrSizeTooSmall
	}
	return r, nil
}

// search runs a ternary search for the most profitable size in
// [1, min(maxFlashloan, slippage-capped size)]. Net profit is concave in size under the
// linear impact model, so the search converges on the optimum.
func (s *Sizer) search(opp types.Opportunity, maxFlashloan, gasPrice *big.Int) *big.Int {
	hi := new(big.Int).Set(maxFlashloan)
	hi = math.Min(hi, s.cost.maxSizeWithinSlippage(opp.Buy))
	hi = math.Min(hi, s.cost.maxSizeWithinSlippage(opp.Sell))
	lo := big.NewInt(1)
	if hi.Cmp(lo) < 0 {
		return new(big.Int)
	}
	hi = new(big.Int).Set(hi)

	profit := func(amount *big.Int) (*big.Int, bool) {
		a, err := s.cost.Analyze(opp, amount, gasPrice)
		if err != nil || !a.SlippageAcceptable() {
			return nil, false
		}
		return a.NetProfitAfterGasRaw, true
	}

	best := new(big.Int).Set(hi)
	bestProfit, ok := profit(best)
	if !ok {
		return new(big.Int)
	}

	three := big.NewInt(3)
	for i := 0; i < searchSteps && new(big.Int).Sub(hi, lo).Cmp(big.NewInt(2)) > 0; i++ {
		third := new(big.Int).Sub(hi, lo)
		third.Quo(third, three)
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)

		p1, ok1 := profit(m1)
		p2, ok2 := profit(m2)
		if !ok1 || !ok2 {
			break
		}

		if p1.Cmp(bestProfit) > 0 {
			best, bestProfit = m1, p1
		}
		if p2.Cmp(bestProfit) > 0 {
			best, bestProfit = m2, p2
		}

		if p1.Cmp(p2) > 0 {
			hi = m2
		} else {
			lo = m1
		}
	}

	return best
}
