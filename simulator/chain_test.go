package simulator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

func (c *counter) snapshot() any { return c.n }
func (c *counter) restore(s any) { c.n = s.(int) }

func TestTransactRollback(t *testing.T) {
	chain := NewChain()
	c := &counter{}
	chain.Deploy(execAddr, c)
	require.NoError(t, chain.Mint(usdc, owner, uint256.NewInt(100)))

	err := chain.Transact(func() error {
		require.NoError(t, chain.Transfer(usdc, owner, vault, uint256.NewInt(60)))
		chain.Approve(usdc, owner, stranger, uint256.NewInt(10))
		chain.Emit(PausedSet{New: true})
		c.n = 7
		return ErrPaused
	})
	assert.ErrorIs(t, err, ErrPaused)

	assert.Equal(t, uint64(100), chain.BalanceOf(usdc, owner).Uint64())
	assert.True(t, chain.BalanceOf(usdc, vault).IsZero())
	assert.True(t, chain.Allowance(usdc, owner, stranger).IsZero())
	assert.Empty(t, chain.Events())
	assert.Zero(t, c.n)
}

func TestTransactPanic(t *testing.T) {
	chain := NewChain()
	require.NoError(t, chain.Mint(usdc, owner, uint256.NewInt(100)))

	err := chain.Transact(func() error {
		require.NoError(t, chain.Transfer(usdc, owner, vault, uint256.NewInt(60)))
		panic("boom")
	})
	assert.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, uint64(100), chain.BalanceOf(usdc, owner).Uint64())
}

func TestNestedTransact(t *testing.T) {
	chain := NewChain()
	require.NoError(t, chain.Mint(usdc, owner, uint256.NewInt(100)))

	err := chain.Transact(func() error {
		require.NoError(t, chain.Transfer(usdc, owner, vault, uint256.NewInt(10)))
		inner := chain.Transact(func() error {
			require.NoError(t, chain.Transfer(usdc, owner, vault, uint256.NewInt(20)))
			return ErrNoRoute
		})
		assert.ErrorIs(t, inner, ErrNoRoute)
		return nil
	})
	require.NoError(t, err)

	// only the outer transfer committed
	assert.Equal(t, uint64(90), chain.BalanceOf(usdc, owner).Uint64())
	assert.Equal(t, uint64(10), chain.BalanceOf(usdc, vault).Uint64())
}

func TestTransferAndAllowance(t *testing.T) {
	chain := NewChain()
	require.NoError(t, chain.Mint(usdc, owner, uint256.NewInt(50)))

	assert.ErrorIs(t, chain.Transfer(usdc, owner, vault, uint256.NewInt(51)), ErrInsufficientBalance)
	require.NoError(t, chain.Transfer(usdc, owner, owner, uint256.NewInt(50)))
	assert.Equal(t, uint64(50), chain.BalanceOf(usdc, owner).Uint64())

	assert.ErrorIs(t, chain.TransferFrom(usdc, stranger, owner, vault, uint256.NewInt(1)), ErrInsufficientAllowance)
	chain.Approve(usdc, owner, stranger, uint256.NewInt(30))
	require.NoError(t, chain.TransferFrom(usdc, stranger, owner, vault, uint256.NewInt(20)))
	assert.Equal(t, uint64(10), chain.Allowance(usdc, owner, stranger).Uint64())
	assert.Equal(t, uint64(20), chain.BalanceOf(usdc, vault).Uint64())

	// returned balances are copies
	bal := chain.BalanceOf(usdc, vault)
	bal.SetUint64(0)
	assert.Equal(t, uint64(20), chain.BalanceOf(usdc, vault).Uint64())

	overflow := new(uint256.Int).SetAllOne()
	assert.Error(t, chain.Mint(usdc, vault, overflow))
}

func TestToWord(t *testing.T) {
	w, err := toWord(nil)
	require.NoError(t, err)
	assert.True(t, w.IsZero())

	_, err = toWord(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = toWord(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestRouter(t *testing.T) {
	chain := NewChain()
	r := NewRouter(chain, buyAddr)
	r.SetRate(usdc, weth, 500, 1e12, 3000)
	require.NoError(t, chain.Mint(weth, buyAddr, uint256.NewInt(1e18)))
	require.NoError(t, chain.Mint(usdc, owner, uint256.NewInt(3000)))

	quote, err := r.QuoteExactInputSingle(context.Background(), usdc, weth, 500, big.NewInt(3000))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000", quote.String())

	_, err = r.QuoteExactInputSingle(context.Background(), usdc, weth, 3000, big.NewInt(3000))
	assert.ErrorIs(t, err, ErrNoRoute)

	params := dex.ExactInputSingleParams{
		TokenIn: usdc, TokenOut: weth, Fee: 500, Recipient: vault,
		AmountIn: big.NewInt(3000), AmountOutMin: big.NewInt(1e12),
	}

	_, err = r.ExactInputSingle(owner, params)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	chain.Approve(usdc, owner, buyAddr, uint256.NewInt(3000))
	tooMuch := params
	tooMuch.AmountOutMin = big.NewInt(1e12 + 1)
	_, err = r.ExactInputSingle(owner, tooMuch)
	assert.ErrorIs(t, err, ErrTooLittleReceived)

	out, err := r.ExactInputSingle(owner, params)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000", out.String())
	assert.Equal(t, uint64(1e12), chain.BalanceOf(weth, vault).Uint64())
	assert.Equal(t, uint64(3000), chain.BalanceOf(usdc, buyAddr).Uint64())

	events := chain.Events()
	require.Len(t, events, 1)
	swap, ok := events[0].(Swap)
	require.True(t, ok)
	assert.Equal(t, owner, swap.Sender)
	assert.Equal(t, "3000", swap.AmountIn.String())
}

func TestRouterInventory(t *testing.T) {
	chain := NewChain()
	r := NewRouter(chain, sellAddr)
	r.SetRate(weth, usdc, 500, 3000, 1e12)
	require.NoError(t, chain.Mint(weth, owner, uint256.NewInt(1e12)))
	chain.Approve(weth, owner, sellAddr, uint256.NewInt(1e12))

	_, err := r.ExactInputSingle(owner, dex.ExactInputSingleParams{
		TokenIn: weth, TokenOut: usdc, Fee: 500, Recipient: owner, AmountIn: big.NewInt(1e12),
	})
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, uint64(1e12), chain.BalanceOf(weth, owner).Uint64())
}

func TestLendingPoolRepayment(t *testing.T) {
	chain := NewChain()
	pool := NewLendingPool(chain, poolAddr, 9)
	require.NoError(t, chain.Mint(usdc, poolAddr, uint256.NewInt(1e6)))

	assert.Equal(t, uint64(900), pool.Premium(uint256.NewInt(1e6)).Uint64())

	stingy := &stubReceiver{chain: chain, approve: false, ok: true}
	err := pool.FlashLoanSimple(owner, stingy, usdc, big.NewInt(1e6), nil, 0)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, uint64(1e6), chain.BalanceOf(usdc, poolAddr).Uint64())

	refusing := &stubReceiver{chain: chain, approve: true, ok: false}
	err = pool.FlashLoanSimple(owner, refusing, usdc, big.NewInt(1e6), nil, 0)
	assert.ErrorIs(t, err, ErrFlashLoanRejected)

	err = pool.FlashLoanSimple(owner, refusing, usdc, new(big.Int), nil, 0)
	var rev *RevertError
	assert.True(t, errors.As(err, &rev))

	// a receiver that approves but cannot pay the premium
	broke := &stubReceiver{chain: chain, approve: true, ok: true}
	err = pool.FlashLoanSimple(owner, broke, usdc, big.NewInt(1e6), nil, 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, chain.Mint(usdc, execAddr, uint256.NewInt(900)))
	require.NoError(t, pool.FlashLoanSimple(owner, broke, usdc, big.NewInt(1e6), nil, 0))
	assert.Equal(t, uint64(1e6+900), chain.BalanceOf(usdc, poolAddr).Uint64())
	assert.Equal(t, []string{"FlashLoan"}, eventNames(chain.Events()))
}

type stubReceiver struct {
	chain   *Chain
	approve bool
	ok      bool
}

func (s *stubReceiver) Address() common.Address { return execAddr }

func (s *stubReceiver) ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, _ common.Address, _ []byte) (bool, error) {
	if s.approve {
		owed, _ := uint256.FromBig(new(big.Int).Add(amount, premium))
		s.chain.Approve(asset, execAddr, caller, owed)
	}
	return s.ok, nil
}
