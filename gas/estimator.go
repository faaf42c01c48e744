package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// Base cost for transaction
	baseTxGas = uint64(21000)
	// Cost per DEX hop: storage reads, token transfers and swap execution
	gasPerHop = uint64(152000)
	// Flashloan request, callback dispatch, repayment approval and pull
	flashloanOverheadGas = uint64(80000)
)

// PriceSource suggests a legacy gas price, as ethclient.Client does
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator provides the gas price used by the cost model
type Estimator struct {
	source   PriceSource
	logger   *zap.Logger
	useLive  bool
	fallback *big.Int

	mu   sync.RWMutex
	last *big.Int
}

// NewEstimator creates a new gas estimator. source may be nil when live pricing is off.
func NewEstimator(source PriceSource, cfg config.GasConfig, logger *zap.Logger) (*Estimator, error) {
	fallback := GweiToWei(cfg.PriceGwei)
	if fallback.Sign() <= 0 {
		return nil, fmt.Errorf("configured gas price must be positive")
	}
	if cfg.UseLivePrice && source == nil {
		return nil, fmt.Errorf("live gas pricing requires a price source")
	}
	return &Estimator{
		source:   source,
		logger:   logger,
		useLive:  cfg.UseLivePrice,
		fallback: fallback,
		last:     new(big.Int).Set(fallback),
	}, nil
}

// Update refreshes the gas price. With live pricing off, or when the node cannot be
// reached, the last known price is kept.
func (e *Estimator) Update(ctx context.Context) *big.Int {
	if !e.useLive {
		return e.GasPrice()
	}

	price, err := e.source.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() <= 0 {
		e.logger.Warn("Failed to update gas price, keeping last known",
			zap.String("gas_price", e.GasPrice().String()),
			zap.Error(err))
		return e.GasPrice()
	}

	e.mu.Lock()
	e.last = new(big.Int).Set(price)
	e.mu.Unlock()

	return new(big.Int).Set(price)
}

// GasPrice returns the last known gas price in wei
func (e *Estimator) GasPrice() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.last)
}

// EstimateArbitrageGas estimates gas for a plain multi-hop arbitrage transaction
func EstimateArbitrageGas(numHops int) uint64 {
	return baseTxGas + gasPerHop*uint64(numHops)
}

// EstimateFlashloanArbitrageGas adds the flashloan round trip to EstimateArbitrageGas
func EstimateFlashloanArbitrageGas(numHops int) uint64 {
	return EstimateArbitrageGas(numHops) + flashloanOverheadGas
}

// GweiToWei converts a gwei amount into wei, truncating sub-wei fractions
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(9).Truncate(0).BigInt()
}

// WeiToGwei converts wei into gwei
func WeiToGwei(wei *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(wei, -9).Float64()
	return f
}
