package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/utils/math"
	"go.uber.org/zap"
)

// AaveV3 pool ABI, premium getter only
const aaveV3PoolABI = `[
	{
		"inputs": [],
		"name": "FLASHLOAN_PREMIUM_TOTAL",
		"outputs": [
			{
				"internalType": "uint128",
				"name": "",
				"type": "uint128"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var _ flashloan.Provider = (*AaveProvider)(nil)

// AaveProvider implements the flash loan Provider interface for Aave V3
type AaveProvider struct {
	caller ethereum.ContractCaller
	pool   common.Address
	logger *zap.Logger
	abi    abi.ABI

	mu         sync.RWMutex
	premiumBps uint64
}

// NewAaveProvider creates a new Aave flash loan provider. premiumBps is used until the
// first successful Refresh.
func NewAaveProvider(caller ethereum.ContractCaller, pool common.Address, premiumBps uint64, logger *zap.Logger) (*AaveProvider, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("pool address cannot be zero")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	parsedABI, err := abi.JSON(strings.NewReader(aaveV3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &AaveProvider{
		caller:     caller,
		pool:       pool,
		logger:     logger,
		abi:        parsedABI,
		premiumBps: premiumBps,
	}, nil
}

// Address returns the lending pool address
func (p *AaveProvider) Address() common.Address {
	return p.pool
}

// PremiumBps returns the last known flashloan premium
func (p *AaveProvider) PremiumBps() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.premiumBps
}

// Refresh reads FLASHLOAN_PREMIUM_TOTAL from the pool
func (p *AaveProvider) Refresh(ctx context.Context) (uint64, error) {
	callData, err := p.abi.Pack("FLASHLOAN_PREMIUM_TOTAL")
	if err != nil {
		return 0, fmt.Errorf("failed to pack premium call: %w", err)
	}

	result, err := p.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &p.pool,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read flashloan premium: %w", err)
	}

	values, err := p.abi.Unpack("FLASHLOAN_PREMIUM_TOTAL", result)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack flashloan premium: %w", err)
	}
	premium, ok := values[0].(*big.Int)
	if !ok || !premium.IsUint64() || premium.Uint64() >= 10000 {
		return 0, fmt.Errorf("implausible flashloan premium %v", values[0])
	}

	p.mu.Lock()
	old := p.premiumBps
	p.premiumBps = premium.Uint64()
	p.mu.Unlock()

	if old != premium.Uint64() {
		p.logger.Info("Flashloan premium updated",
			zap.Uint64("old_bps", old),
			zap.Uint64("new_bps", premium.Uint64()))
	}

	return premium.Uint64(), nil
}

// Fee calculates the premium owed for borrowing amount
func (p *AaveProvider) Fee(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	return math.MulBps(amount, p.PremiumBps())
}

// String returns the provider name
func (p *AaveProvider) String() string {
	return "Aave V3"
}
