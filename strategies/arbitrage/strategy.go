package arbitrage

import (
	"math/big"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// Candidate is an opportunity together with its sizing and cost analysis
type Candidate struct {
	Opportunity types.Opportunity
	Sizing      types.SizingResult
	Analysis    types.ProfitAnalysis
}

// Viable reports whether the candidate passed every cost check
func (c Candidate) Viable() bool {
	return c.Analysis.Viable()
}

// RejectReason names the first failing check of a non-viable candidate
func (c Candidate) RejectReason() string {
	switch {
	case !c.Analysis.SlippageAcceptable():
		return metrics.ReasonSlippage
	case !c.Analysis.MeetsMinProfit:
		return metrics.ReasonMinProfit
	case !c.Analysis.MeetsMinBps:
		return metrics.ReasonMinBps
	default:
		return ""
	}
}

// Strategy runs detection, sizing and cost modelling over a pair's quotes
type Strategy struct {
	detector *Detector
	sizer    *Sizer
	cost     *CostModel
	logger   *zap.Logger
	metrics  *metrics.StrategyMetrics
}

// NewStrategy wires the pairwise arbitrage pipeline
func NewStrategy(detector *Detector, sizer *Sizer, cost *CostModel, m *metrics.StrategyMetrics, logger *zap.Logger) *Strategy {
	if m == nil {
		m = metrics.NewStrategyMetrics(nil, metrics.Namespace)
	}
	return &Strategy{
		detector: detector,
		sizer:    sizer,
		cost:     cost,
		logger:   logger,
		metrics:  m,
	}
}

// Cost returns the cost model used by the strategy
func (s *Strategy) Cost() *CostModel {
	return s.cost
}

// WithCost returns a copy of the strategy using a different cost model
func (s *Strategy) WithCost(cost *CostModel) *Strategy {
	cp := *s
	cp.cost = cost
	if cp.sizer != nil && cp.sizer.cost != nil {
		sizer := *cp.sizer
		sizer.cost = cost
		cp.sizer = &sizer
	}
	return &cp
}

// Evaluate returns every sized and analysed candidate in detection order (best gross
// profit first). Opportunities that cannot be sized or analysed are logged and skipped.
func (s *Strategy) Evaluate(quotes []types.PoolQuote, gasPrice *big.Int) []Candidate {
	opportunities := s.detector.Detect(quotes)
	s.metrics.Opportunities.Add(float64(len(opportunities)))
	if len(opportunities) > 0 {
		best, _ := opportunities[0].GrossProfitPercent.Float64()
		s.metrics.BestGross.Set(best)
	}

	candidates := make([]Candidate, 0, len(opportunities))
	for _, opp := range opportunities {
		sizing, err := s.sizer.Size(opp, gasPrice)
		if err != nil {
			s.metrics.Rejected.WithLabelValues(metrics.ReasonSizing).Inc()
			s.logger.Debug("Skipping opportunity",
				zap.String("buy_pool", opp.Buy.Pool.Hex()),
				zap.String("sell_pool", opp.Sell.Pool.Hex()),
				zap.Error(err))
			continue
		}

		analysis, err := s.cost.Analyze(opp, sizing.OptimalAmount, gasPrice)
		if err != nil {
			s.metrics.Rejected.WithLabelValues(metrics.ReasonSizing).Inc()
			s.logger.Debug("Failed to analyse opportunity",
				zap.String("buy_pool", opp.Buy.Pool.Hex()),
				zap.String("sell_pool", opp.Sell.Pool.Hex()),
				zap.Error(err))
			continue
		}

		c := Candidate{Opportunity: opp, Sizing: sizing, Analysis: analysis}
		if c.Viable() {
			s.metrics.Viable.Inc()
			net, _ := analysis.NetProfitAfterGas.Float64()
			s.metrics.NetProfitUSD.Observe(net)
		} else {
			s.metrics.Rejected.WithLabelValues(c.RejectReason()).Inc()
		}
		candidates = append(candidates, c)
	}

	return candidates
}
