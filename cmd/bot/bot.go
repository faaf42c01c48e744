package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/storage"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// ErrRPCUnavailable is returned by RunCycle when the node cannot be reached
var ErrRPCUnavailable = errors.New("rpc endpoint unavailable")

// NodeChecker is used to check the node at the start of every cycle
type NodeChecker interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// QuoteSource returns the current pool quotes of a pair
type QuoteSource interface {
	Quotes(ctx context.Context, tokenA, tokenB common.Address) ([]types.PoolQuote, error)
}

// GasOracle refreshes the gas price used by the cost model
type GasOracle interface {
	Update(ctx context.Context) *big.Int
}

// Preflight dry-runs executor params before they are handed off
type Preflight interface {
	SimulateArbitrage(ctx context.Context, p flashloan.ArbitrageParams) (*simulator.SimulationResult, error)
}

// Journal records every evaluated candidate
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Pair is a monitored token pair
type Pair struct {
	Name   string
	TokenA common.Address
	TokenB common.Address
}

// Deps are the collaborators of a Bot. Lender, Preflight and Journal are optional.
type Deps struct {
	Node     NodeChecker
	Quotes   QuoteSource
	Gas      GasOracle
	Strategy *arbitrage.Strategy
	Builder  *flashloan.Builder
	// Lender is polled once per cycle for premium changes
	Lender    flashloan.Provider
	Preflight Preflight
	Journal   Journal

	CycleMetrics    *metrics.CycleMetrics
	StrategyMetrics *metrics.StrategyMetrics

	Pairs    []Pair
	Interval time.Duration
}

// Ready is a candidate turned into executor params
type Ready struct {
	Pair      string
	Candidate arbitrage.Candidate
	Params    flashloan.ArbitrageParams
	// Premium is the flashloan fee owed on Params.Amount, nil without a Lender
	Premium *big.Int
	// GasUsed is the preflight estimate, zero when no preflight ran
	GasUsed uint64
}

// CycleReport summarizes one polling cycle
type CycleReport struct {
	Block      uint64
	GasPrice   *big.Int
	Quotes     int
	Candidates int
	Viable     int
	Ready      []Ready
}

// Bot polls every pair once per cycle and turns viable candidates into executor params.
// Submission is left to the caller.
type Bot struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	// cycleMu serializes cycles, which may swap the strategy and builder
	cycleMu sync.Mutex

	stopped  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new bot instance
func New(deps Deps, logger *zap.Logger) (*Bot, error) {
	if deps.Node == nil {
		return nil, fmt.Errorf("node checker is required")
	}
	if deps.Quotes == nil {
		return nil, fmt.Errorf("quote source is required")
	}
	if deps.Gas == nil {
		return nil, fmt.Errorf("gas oracle is required")
	}
	if deps.Strategy == nil || deps.Builder == nil {
		return nil, fmt.Errorf("strategy and builder are required")
	}
	if len(deps.Pairs) == 0 {
		return nil, fmt.Errorf("at least one pair is required")
	}
	if deps.Interval <= 0 {
		return nil, fmt.Errorf("polling interval must be positive")
	}
	if deps.CycleMetrics == nil {
		deps.CycleMetrics = metrics.NewCycleMetrics(nil, metrics.Namespace)
	}
	if deps.StrategyMetrics == nil {
		deps.StrategyMetrics = metrics.NewStrategyMetrics(nil, metrics.Namespace)
	}

	return &Bot{
		deps:   deps,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}, nil
}

// Run executes cycles until ctx is cancelled or Stop is called. A cycle that fails is
// logged and retried on the next tick. Cancellation is only observed between cycles.
func (b *Bot) Run(ctx context.Context) error {
	b.wg.Add(1)
	defer b.wg.Done()

	b.logger.Info("Starting arbitrage bot",
		zap.Int("pairs", len(b.deps.Pairs)),
		zap.Duration("interval", b.deps.Interval))

	cycleCtx := context.WithoutCancel(ctx)
	for {
		if b.stopped.Load() || ctx.Err() != nil {
			b.logger.Info("Arbitrage bot stopped")
			return nil
		}

		if _, err := b.RunCycle(cycleCtx); err != nil {
			b.logger.Error("Cycle failed", zap.Error(err))
		}

		timer := time.NewTimer(b.deps.Interval)
		select {
		case <-ctx.Done():
		case <-b.stop:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Stop asks Run to return after the current cycle and waits for it
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot...")
	b.stopped.Store(true)
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

// RunCycle checks the node, refreshes gas and evaluates every pair once. Only a failed
// node check is returned as an error; pair and pool failures are logged and skipped.
func (b *Bot) RunCycle(ctx context.Context) (*CycleReport, error) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	start := b.now()
	defer func() {
		b.deps.CycleMetrics.Duration.Observe(time.Since(start).Seconds())
	}()

	block, err := b.deps.Node.BlockNumber(ctx)
	if err != nil {
		b.deps.CycleMetrics.Failures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
	}

	gasPrice := b.deps.Gas.Update(ctx)
	if gasPrice != nil {
		b.deps.CycleMetrics.GasPrice.Set(gas.WeiToGwei(gasPrice))
	}
	b.refreshPremium(ctx)

	report := &CycleReport{Block: block, GasPrice: gasPrice}
	for _, pair := range b.deps.Pairs {
		b.runPair(ctx, pair, gasPrice, report)
	}

	b.deps.CycleMetrics.Cycles.Inc()
	b.logger.Info("Cycle complete",
		zap.Uint64("block", block),
		zap.Int("quotes", report.Quotes),
		zap.Int("candidates", report.Candidates),
		zap.Int("viable", report.Viable),
		zap.Int("ready", len(report.Ready)))

	return report, nil
}

// refreshPremium re-reads the lender premium and rebuilds the cost model and builder
// when it changed. A failed read keeps the current premium.
func (b *Bot) refreshPremium(ctx context.Context) {
	if b.deps.Lender == nil {
		return
	}
	bps, err := b.deps.Lender.Refresh(ctx)
	if err != nil {
		b.logger.Warn("Failed to refresh flashloan premium",
			zap.Stringer("lender", b.deps.Lender),
			zap.Uint64("premium_bps", b.deps.Strategy.Cost().PremiumBps()),
			zap.Error(err))
		return
	}
	if bps == b.deps.Strategy.Cost().PremiumBps() {
		return
	}
	b.deps.Strategy = b.deps.Strategy.WithCost(b.deps.Strategy.Cost().WithPremiumBps(bps))
	b.deps.Builder = b.deps.Builder.WithPremiumBps(bps)
	b.logger.Info("Flashloan premium changed", zap.Uint64("premium_bps", bps))
}

func (b *Bot) runPair(ctx context.Context, pair Pair, gasPrice *big.Int, report *CycleReport) {
	quotes, err := b.deps.Quotes.Quotes(ctx, pair.TokenA, pair.TokenB)
	if err != nil {
		b.logger.Debug("Skipping pair", zap.String("pair", pair.Name), zap.Error(err))
		return
	}
	report.Quotes += len(quotes)

	candidates := b.deps.Strategy.Evaluate(quotes, gasPrice)
	report.Candidates += len(candidates)

	for _, c := range candidates {
		entry := b.entry(c)

		if c.Viable() {
			report.Viable++
			ready, ok := b.prepare(ctx, pair, c)
			if ok {
				entry.MinProfit = ready.Params.MinProfit
				report.Ready = append(report.Ready, ready)
			}
		} else {
			b.logger.Debug("Candidate rejected",
				zap.String("pair", pair.Name),
				zap.String("buy", c.Opportunity.Buy.Venue),
				zap.String("sell", c.Opportunity.Sell.Venue),
				zap.String("reason", c.RejectReason()),
				zap.String("net_usd", c.Analysis.NetProfitAfterGas.StringFixed(4)))
		}

		b.record(ctx, entry)
	}
}

// prepare builds and optionally preflights a viable candidate
func (b *Bot) prepare(ctx context.Context, pair Pair, c arbitrage.Candidate) (Ready, bool) {
	fields := []zap.Field{
		zap.String("pair", pair.Name),
		zap.String("buy", c.Opportunity.Buy.Venue),
		zap.Uint32("buy_fee", c.Opportunity.Buy.FeeTier),
		zap.String("sell", c.Opportunity.Sell.Venue),
		zap.Uint32("sell_fee", c.Opportunity.Sell.FeeTier),
		zap.String("amount", c.Sizing.OptimalAmount.String()),
		zap.String("net_usd", c.Analysis.NetProfitAfterGas.StringFixed(4)),
	}

	params, err := b.deps.Builder.Build(c.Opportunity, c.Sizing, c.Analysis)
	if err != nil {
		b.deps.StrategyMetrics.Rejected.WithLabelValues(metrics.ReasonBuild).Inc()
		b.logger.Warn("Failed to build arbitrage", append(fields, zap.Error(err))...)
		return Ready{}, false
	}

	ready := Ready{Pair: pair.Name, Candidate: c, Params: params}
	if b.deps.Lender != nil {
		ready.Premium = b.deps.Lender.Fee(params.Amount)
	}
	if b.deps.Preflight != nil {
		result, err := b.deps.Preflight.SimulateArbitrage(ctx, params)
		if err != nil {
			b.logger.Warn("Preflight failed", append(fields, zap.Error(err))...)
			return Ready{}, false
		}
		if !result.Success {
			b.logger.Info("Preflight reverted", append(fields, zap.Error(result.Error))...)
			return Ready{}, false
		}
		ready.GasUsed = result.GasUsed
	}

	b.logger.Info("Arbitrage ready", append(fields,
		zap.String("min_profit", params.MinProfit.String()),
		zap.Uint64("gas_used", ready.GasUsed))...)
	return ready, true
}

func (b *Bot) entry(c arbitrage.Candidate) storage.Entry {
	opp := c.Opportunity
	verdict := storage.VerdictViable
	if !c.Viable() {
		verdict = c.RejectReason()
	}
	return storage.Entry{
		RecordedAt:   b.now(),
		Token0:       opp.Buy.Token0,
		Token1:       opp.Buy.Token1,
		BuyVenue:     opp.Buy.Venue,
		BuyPool:      opp.Buy.Pool,
		BuyFee:       opp.Buy.FeeTier,
		SellVenue:    opp.Sell.Venue,
		SellPool:     opp.Sell.Pool,
		SellFee:      opp.Sell.FeeTier,
		GrossPercent: opp.GrossProfitPercent,
		BorrowAmount: c.Sizing.OptimalAmount,
		NetUSD:       c.Analysis.NetProfitAfterGas,
		Verdict:      verdict,
	}
}

func (b *Bot) record(ctx context.Context, e storage.Entry) {
	if b.deps.Journal == nil {
		return
	}
	if err := b.deps.Journal.Record(ctx, e); err != nil {
		b.logger.Warn("Failed to journal candidate", zap.Error(err))
	}
}
