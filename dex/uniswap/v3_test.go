package uniswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	quoterAddr  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	poolAddr    = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	usdc        = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type mockCaller struct {
	responses map[callKey][]byte
	errs      map[callKey]error
	lastData  map[callKey][]byte
}

func newMockCaller() *mockCaller {
	return &mockCaller{
		responses: make(map[callKey][]byte),
		errs:      make(map[callKey]error),
		lastData:  make(map[callKey][]byte),
	}
}

func (m *mockCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var key callKey
	key.to = *msg.To
	copy(key.selector[:], msg.Data[:4])
	m.lastData[key] = msg.Data
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	return m.responses[key], nil
}

func (m *mockCaller) respond(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	var key callKey
	key.to = to
	copy(key.selector[:], parsed.Methods[method].ID)
	m.responses[key] = out
}

func (m *mockCaller) fail(to common.Address, parsed abi.ABI, method string, err error) {
	var key callKey
	key.to = to
	copy(key.selector[:], parsed.Methods[method].ID)
	m.errs[key] = err
}

func newTestClient(t *testing.T) (*Client, *mockCaller) {
	caller := newMockCaller()
	c, err := NewClient(caller, factoryAddr, quoterAddr)
	require.NoError(t, err)
	return c, caller
}

func TestGetPool(t *testing.T) {
	c, caller := newTestClient(t)
	caller.respond(t, factoryAddr, c.factoryABI, "getPool", poolAddr)

	pool, err := c.GetPool(context.Background(), weth, usdc, 500)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, pool)

	var key callKey
	key.to = factoryAddr
	copy(key.selector[:], c.factoryABI.Methods["getPool"].ID)
	args, err := c.factoryABI.Methods["getPool"].Inputs.Unpack(caller.lastData[key][4:])
	require.NoError(t, err)
	assert.Equal(t, weth, args[0])
	assert.Equal(t, usdc, args[1])
	assert.Equal(t, int64(500), args[2].(*big.Int).Int64())
}

func TestGetPoolMissing(t *testing.T) {
	c, caller := newTestClient(t)
	caller.respond(t, factoryAddr, c.factoryABI, "getPool", common.Address{})

	pool, err := c.GetPool(context.Background(), weth, usdc, 100)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, pool)
}

func TestReadPool(t *testing.T) {
	c, caller := newTestClient(t)
	sqrtPrice, _ := new(big.Int).SetString("1771595571142957166518320255467520", 10)
	liquidity, _ := new(big.Int).SetString("29000000000000000000", 10)

	caller.respond(t, poolAddr, c.poolABI, "slot0", sqrtPrice, big.NewInt(-201000), uint16(1), uint16(2), uint16(3), uint8(0), true)
	caller.respond(t, poolAddr, c.poolABI, "liquidity", liquidity)
	caller.respond(t, poolAddr, c.poolABI, "token0", usdc)
	caller.respond(t, poolAddr, c.poolABI, "token1", weth)
	caller.respond(t, poolAddr, c.poolABI, "fee", big.NewInt(500))

	state, err := c.ReadPool(context.Background(), poolAddr)
	require.NoError(t, err)

	assert.Equal(t, poolAddr, state.Address)
	assert.Equal(t, usdc, state.Token0)
	assert.Equal(t, weth, state.Token1)
	assert.Equal(t, uint32(500), state.Fee)
	assert.Equal(t, int64(-201000), state.Tick)
	assert.Equal(t, 0, sqrtPrice.Cmp(state.SqrtPriceX96))
	assert.Equal(t, 0, liquidity.Cmp(state.Liquidity))
}

func TestReadPoolErrors(t *testing.T) {
	t.Run("revert", func(t *testing.T) {
		c, caller := newTestClient(t)
		caller.fail(poolAddr, c.poolABI, "slot0", errors.New("execution reverted"))

		_, err := c.ReadPool(context.Background(), poolAddr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read slot0")
	})

	t.Run("no code", func(t *testing.T) {
		c, _ := newTestClient(t)

		_, err := c.ReadPool(context.Background(), poolAddr)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestDecimals(t *testing.T) {
	c, caller := newTestClient(t)
	caller.respond(t, usdc, c.erc20ABI, "decimals", uint8(6))

	d, err := c.Decimals(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestQuoteExactInputSingle(t *testing.T) {
	c, caller := newTestClient(t)
	caller.respond(t, quoterAddr, c.quoterABI, "quoteExactInputSingle",
		big.NewInt(2_990_000_000), big.NewInt(1), uint32(2), big.NewInt(90000))

	out, err := c.QuoteExactInputSingle(context.Background(), weth, usdc, 500, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, int64(2_990_000_000), out.Int64())

	noQuoter, err := NewClient(caller, factoryAddr, common.Address{})
	require.NoError(t, err)
	_, err = noQuoter.QuoteExactInputSingle(context.Background(), weth, usdc, 500, big.NewInt(1))
	assert.Error(t, err)
}

func TestNewClientNilCaller(t *testing.T) {
	_, err := NewClient(nil, factoryAddr, quoterAddr)
	assert.Error(t, err)
}
