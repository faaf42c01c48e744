package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolState is the raw state of a concentrated-liquidity pool
type PoolState struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
}

// PoolReader reads pool state from a venue. Implementations must be side-effect free.
type PoolReader interface {
	// GetPool resolves the pool for a pair and fee tier. The zero address means no pool exists.
	GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)

	// ReadPool reads spot price, liquidity and token ordering of a pool
	ReadPool(ctx context.Context, pool common.Address) (*PoolState, error)
}

// TokenReader resolves ERC20 metadata
type TokenReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Quoter can price an exact-input single-pool swap without executing it
type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
}

// ExactInputSingleParams mirrors the router's exact-input-single argument
type ExactInputSingleParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32
	Recipient    common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
}

// SwapExecutor can execute an exact-input single-pool swap on behalf of sender.
// It runs inside a transaction's call stack, so it takes no context.
type SwapExecutor interface {
	ExactInputSingle(sender common.Address, params ExactInputSingleParams) (*big.Int, error)
}

// Venue is a named source of pool state
type Venue struct {
	Name   string
	Router common.Address
	Reader PoolReader
}
