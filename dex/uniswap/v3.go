package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
)

// ErrEmptyResponse is returned when a call hits an address without code
var ErrEmptyResponse = errors.New("empty call response")

// Client reads Uniswap V3 style factories, pools and quoters over eth_call
type Client struct {
	caller  ethereum.ContractCaller
	factory common.Address
	quoter  common.Address

	factoryABI abi.ABI
	poolABI    abi.ABI
	erc20ABI   abi.ABI
	quoterABI  abi.ABI
}

var (
	_ dex.PoolReader  = (*Client)(nil)
	_ dex.TokenReader = (*Client)(nil)
	_ dex.Quoter      = (*Client)(nil)
)

type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// NewClient creates a client for the venue deployed at factory. quoter may be the zero
// address when quoting is not needed.
func NewClient(caller ethereum.ContractCaller, factory, quoter common.Address) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}

	c := &Client{caller: caller, factory: factory, quoter: quoter}
	for _, def := range []struct {
		dst *abi.ABI
		src string
	}{
		{&c.factoryABI, factoryABI},
		{&c.poolABI, poolABI},
		{&c.erc20ABI, erc20ABI},
		{&c.quoterABI, quoterV2ABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(def.src))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI: %w", err)
		}
		*def.dst = parsed
	}

	return c, nil
}

// GetPool resolves the pool address for a pair and fee tier
func (c *Client) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := c.call(ctx, c.factory, c.factoryABI, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get pool: %w", err)
	}
	return out[0].(common.Address), nil
}

// ReadPool reads slot0, liquidity and token ordering of pool
func (c *Client) ReadPool(ctx context.Context, pool common.Address) (*dex.PoolState, error) {
	slot0, err := c.call(ctx, pool, c.poolABI, "slot0")
	if err != nil {
		return nil, fmt.Errorf("failed to read slot0: %w", err)
	}
	liquidity, err := c.call(ctx, pool, c.poolABI, "liquidity")
	if err != nil {
		return nil, fmt.Errorf("failed to read liquidity: %w", err)
	}
	token0, err := c.call(ctx, pool, c.poolABI, "token0")
	if err != nil {
		return nil, fmt.Errorf("failed to read token0: %w", err)
	}
	token1, err := c.call(ctx, pool, c.poolABI, "token1")
	if err != nil {
		return nil, fmt.Errorf("failed to read token1: %w", err)
	}
	fee, err := c.call(ctx, pool, c.poolABI, "fee")
	if err != nil {
		return nil, fmt.Errorf("failed to read fee: %w", err)
	}

	return &dex.PoolState{
		Address:      pool,
		Token0:       token0[0].(common.Address),
		Token1:       token1[0].(common.Address),
		Fee:          uint32(fee[0].(*big.Int).Uint64()),
		SqrtPriceX96: slot0[0].(*big.Int),
		Tick:         slot0[1].(*big.Int).Int64(),
		Liquidity:    liquidity[0].(*big.Int),
	}, nil
}

// Decimals reads the ERC20 decimals of token
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to read decimals: %w", err)
	}
	return out[0].(uint8), nil
}

// QuoteExactInputSingle asks the QuoterV2 contract for the output of a single-pool swap
func (c *Client) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	if c.quoter == (common.Address{}) {
		return nil, fmt.Errorf("quoter not configured")
	}
	params := quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	}
	out, err := c.call(ctx, c.quoter, c.quoterABI, "quoteExactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to quote: %w", err)
	}
	return out[0].(*big.Int), nil
}

func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), ErrEmptyResponse)
	}

	out, err := parsed.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}
