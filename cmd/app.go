package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/pricing"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/storage"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// app owns the bot and everything that has to be closed with it
type app struct {
	bot     *bot.Bot
	journal *storage.Journal
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp dials the node and wires the pipeline described by cfg
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	client, err := ethclient.DialContext(ctx, cfg.Network.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	caller := utils.NewGuardedCaller(client, cfg.RPCRateLimit, cfg.CircuitBreaker, cfg.Network.RequestTimeout, log)

	venues := make([]dex.Venue, 0, len(cfg.Venues))
	var tokens dex.TokenReader
	for _, v := range cfg.Venues {
		reader, err := uniswap.NewClient(caller, common.HexToAddress(v.Factory), common.HexToAddress(v.Quoter))
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		if tokens == nil {
			tokens = reader
		}
		venues = append(venues, dex.Venue{Name: v.Name, Router: common.HexToAddress(v.Router), Reader: reader})
	}

	aggregator, err := pricing.NewAggregator(pricing.AggregatorConfig{
		Venues:   venues,
		FeeTiers: cfg.FeeTiers,
		Decimals: cfg.TokenDecimals(),
		Tokens:   tokens,
		Metrics:  metrics.NewPricingMetrics(reg, metrics.Namespace),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create price aggregator: %w", err)
	}

	estimator, err := gas.NewEstimator(client, cfg.Gas, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create gas estimator: %w", err)
	}

	provider, err := aave.NewAaveProvider(caller, cfg.LendingPoolAddress(), cfg.Flashloan.PremiumBps, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create flashloan provider: %w", err)
	}
	premiumBps, err := provider.Refresh(ctx)
	if err != nil {
		premiumBps = provider.PremiumBps()
		log.Warn("Using configured flashloan premium",
			zap.String("provider", provider.String()),
			zap.Uint64("premium_bps", premiumBps),
			zap.Error(err))
	}

	cost, err := arbitrage.NewCostModel(costConfig(cfg, premiumBps))
	if err != nil {
		return nil, fmt.Errorf("failed to create cost model: %w", err)
	}
	sizer, err := arbitrage.NewSizer(cfg.Strategy.MaxFlashloanPercent, cfg.Strategy.SizingMode, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to create sizer: %w", err)
	}
	strategyMetrics := metrics.NewStrategyMetrics(reg, metrics.Namespace)
	strategy := arbitrage.NewStrategy(arbitrage.NewDetector(log), sizer, cost, strategyMetrics, log)

	builder, err := flashloan.NewBuilder(flashloan.BuilderConfig{
		Lender:               provider.Address(),
		Routers:              cfg.VenueRouters(),
		ProfitSafetyFraction: cfg.Strategy.ProfitSafetyFraction,
		MaxSlippageBps:       cfg.Strategy.MaxSlippageBps,
		PremiumBps:           premiumBps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction builder: %w", err)
	}

	pairs, err := resolvePairs(cfg)
	if err != nil {
		return nil, err
	}

	deps := bot.Deps{
		Node:            client,
		Quotes:          aggregator,
		Gas:             estimator,
		Strategy:        strategy,
		Builder:         builder,
		Lender:          provider,
		CycleMetrics:    metrics.NewCycleMetrics(reg, metrics.Namespace),
		StrategyMetrics: strategyMetrics,
		Pairs:           pairs,
		Interval:        cfg.Polling.Interval,
	}

	if cfg.PreflightEnabled() {
		deps.Preflight = simulator.NewSimulator(client, cfg.ExecutorAddress(), cfg.OwnerAddress())
		log.Info("Preflight enabled", zap.String("executor", cfg.ExecutorAddress().Hex()))
	}

	if cfg.Journal.Path != "" {
		journal, err := storage.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := journal.Close(); err != nil {
				log.Warn("Failed to close journal", zap.Error(err))
			}
		})
		a.journal = journal
		deps.Journal = journal
	}

	if cfg.Metrics.Enabled {
		a.closers = append(a.closers, serveMetrics(cfg.Metrics.ListenAddr, reg, log))
	}

	a.bot, err = bot.New(deps, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return a, nil
}

func costConfig(cfg *config.Config, premiumBps uint64) arbitrage.CostConfig {
	prices := make(map[common.Address]decimal.Decimal, len(cfg.Tokens))
	for addr, usd := range cfg.TokenPrices() {
		prices[addr] = decimal.NewFromFloat(usd)
	}
	units := cfg.Gas.Units
	if units == 0 {
		units = gas.EstimateFlashloanArbitrageGas(2)
	}
	return arbitrage.CostConfig{
		FlashloanPremiumBps: premiumBps,
		MaxSlippageBps:      cfg.Strategy.MaxSlippageBps,
		MinProfitUSD:        decimal.NewFromFloat(cfg.Strategy.MinProfitUSD),
		MinProfitBps:        decimal.NewFromFloat(cfg.Strategy.MinProfitBps),
		GasUnits:            units,
		GasPrice:            gas.GweiToWei(cfg.Gas.PriceGwei),
		NativePriceUSD:      decimal.NewFromFloat(cfg.Gas.NativePriceUSD),
		TokenPricesUSD:      prices,
	}
}

func resolvePairs(cfg *config.Config) ([]bot.Pair, error) {
	pairs := make([]bot.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		a, okA := cfg.Token(p.TokenA)
		b, okB := cfg.Token(p.TokenB)
		if !okA || !okB {
			return nil, fmt.Errorf("pair %s/%s: unknown token", p.TokenA, p.TokenB)
		}
		pairs = append(pairs, bot.Pair{
			Name:   p.TokenA + "/" + p.TokenB,
			TokenA: common.HexToAddress(a.Address),
			TokenB: common.HexToAddress(b.Address),
		})
	}
	return pairs, nil
}

// serveMetrics exposes reg over HTTP and returns the shutdown func
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
