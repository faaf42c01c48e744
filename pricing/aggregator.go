package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

var (
	ErrSameToken        = errors.New("pair tokens must differ")
	ErrUnknownDecimals  = errors.New("token decimals unknown")
	ErrPoolPairMismatch = errors.New("pool tokens do not match pair")

	errNoPool = errors.New("pool does not exist")
)

// AggregatorConfig holds the collaborators of an Aggregator
type AggregatorConfig struct {
	Venues   []dex.Venue
	FeeTiers []uint32
	// Decimals known up front, keyed by token address
	Decimals map[common.Address]uint8
	// Tokens resolves decimals missing from Decimals; may be nil
	Tokens  dex.TokenReader
	Cache   *AddressCache
	Metrics *metrics.PricingMetrics
}

// Aggregator fans pool reads out across every venue and fee tier of a pair
type Aggregator struct {
	venues   []dex.Venue
	feeTiers []uint32
	decimals map[common.Address]uint8
	tokens   dex.TokenReader
	cache    *AddressCache
	metrics  *metrics.PricingMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAggregator creates a new price aggregator
func NewAggregator(cfg AggregatorConfig, logger *zap.Logger) (*Aggregator, error) {
	if len(cfg.Venues) == 0 {
		return nil, fmt.Errorf("at least one venue is required")
	}
	if len(cfg.FeeTiers) == 0 {
		return nil, fmt.Errorf("at least one fee tier is required")
	}
	if cfg.Cache == nil {
		cache, err := NewAddressCache(len(cfg.Venues) * len(cfg.FeeTiers) * 64)
		if err != nil {
			return nil, err
		}
		cfg.Cache = cache
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewPricingMetrics(nil, metrics.Namespace)
	}

	decimals := make(map[common.Address]uint8, len(cfg.Decimals))
	for k, v := range cfg.Decimals {
		decimals[k] = v
	}

	return &Aggregator{
		venues:   cfg.Venues,
		feeTiers: cfg.FeeTiers,
		decimals: decimals,
		tokens:   cfg.Tokens,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Quotes returns one PoolQuote per existing venue/fee-tier pool of the pair. Missing
// pools and failed reads are skipped; the result may be partial or empty. Quotes are
// ordered by venue, then by fee tier, as configured.
func (a *Aggregator) Quotes(ctx context.Context, tokenA, tokenB common.Address) ([]types.PoolQuote, error) {
	if tokenA == tokenB {
		return nil, ErrSameToken
	}

	results := make([]*types.PoolQuote, len(a.venues)*len(a.feeTiers))
	var wg sync.WaitGroup

	for vi, venue := range a.venues {
		for fi, fee := range a.feeTiers {
			wg.Add(1)
			go func(slot int, venue dex.Venue, fee uint32) {
				defer wg.Done()

				q, err := a.quote(ctx, venue, tokenA, tokenB, fee)
				switch {
				case errors.Is(err, errNoPool):
					a.metrics.MissingPools.Inc()
				case utils.IsCircuitOpen(err):
					a.metrics.CircuitOpen.Inc()
					a.logger.Debug("Pool read refused, circuit open",
						zap.String("venue", venue.Name),
						zap.Uint32("fee", fee))
				case err != nil:
					a.metrics.ReadFailures.WithLabelValues(venue.Name).Inc()
					a.logger.Warn("Failed to read pool",
						zap.String("venue", venue.Name),
						zap.Uint32("fee", fee),
						zap.Error(err))
				default:
					results[slot] = q
				}
			}(vi*len(a.feeTiers)+fi, venue, fee)
		}
	}
	wg.Wait()

	quotes := make([]types.PoolQuote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	a.metrics.Quotes.Add(float64(len(quotes)))

	return quotes, nil
}

func (a *Aggregator) quote(ctx context.Context, venue dex.Venue, tokenA, tokenB common.Address, fee uint32) (*types.PoolQuote, error) {
	pool, err := a.resolvePool(ctx, venue, tokenA, tokenB, fee)
	if err != nil {
		return nil, err
	}

	a.metrics.PoolReads.Inc()
	start := time.Now()
	state, err := venue.Reader.ReadPool(ctx, pool)
	a.metrics.ReadLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if !(state.Token0 == tokenA && state.Token1 == tokenB) && !(state.Token0 == tokenB && state.Token1 == tokenA) {
		return nil, fmt.Errorf("%w: pool %s", ErrPoolPairMismatch, pool.Hex())
	}

	dec0, err := a.tokenDecimals(ctx, state.Token0)
	if err != nil {
		return nil, err
	}
	dec1, err := a.tokenDecimals(ctx, state.Token1)
	if err != nil {
		return nil, err
	}

	price, err := PriceFromSqrtX96(state.SqrtPriceX96, dec0, dec1)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Hex(), err)
	}

	liquidity := state.Liquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}

	return &types.PoolQuote{
		Venue:          venue.Name,
		Pool:           pool,
		FeeTier:        state.Fee,
		Token0:         state.Token0,
		Token1:         state.Token1,
		Token0Decimals: dec0,
		Token1Decimals: dec1,
		Price:          price,
		Liquidity:      liquidity,
		Tick:           state.Tick,
		Timestamp:      a.now(),
	}, nil
}

func (a *Aggregator) resolvePool(ctx context.Context, venue dex.Venue, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	if pool, ok := a.cache.Pool(venue.Name, tokenA, tokenB, fee); ok {
		return pool, nil
	}

	pool, err := venue.Reader.GetPool(ctx, tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, err
	}
	// A missing pool may be deployed later, so only hits are cached
	if pool == (common.Address{}) {
		return common.Address{}, errNoPool
	}

	a.cache.AddPool(venue.Name, tokenA, tokenB, fee, pool)
	return pool, nil
}

func (a *Aggregator) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if d, ok := a.decimals[token]; ok {
		return d, nil
	}
	if d, ok := a.cache.Decimals(token); ok {
		return d, nil
	}
	if a.tokens == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDecimals, token.Hex())
	}

	d, err := a.tokens.Decimals(ctx, token)
	if err != nil {
		return 0, err
	}
	a.cache.AddDecimals(token, d)
	return d, nil
}
