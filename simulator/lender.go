package simulator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FlashLoanReceiver is the callback side of a simple flashloan
type FlashLoanReceiver interface {
	Address() common.Address
	// ExecuteOperation is invoked by caller after amount of asset has been sent to the
	// receiver. amount+premium must be approved to the caller before returning.
	ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error)
}

// FlashLender lends within a single call
type FlashLender interface {
	FlashLoanSimple(sender common.Address, receiver FlashLoanReceiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error
}

// FlashLoan is emitted by the lending pool for every completed loan
type FlashLoan struct {
	Target    common.Address
	Initiator common.Address
	Asset     common.Address
	Amount    *big.Int
	Premium   *big.Int
	Referral  uint16
}

func (FlashLoan) EventName() string { return "FlashLoan" }

// LendingPool models an Aave V3 pool's flashLoanSimple
type LendingPool struct {
	chain      *Chain
	address    common.Address
	premiumBps uint64
}

// NewLendingPool deploys a lending pool at address. Its liquidity is its own token balance.
func NewLendingPool(chain *Chain, address common.Address, premiumBps uint64) *LendingPool {
	p := &LendingPool{chain: chain, address: address, premiumBps: premiumBps}
	chain.Deploy(address, p)
	return p
}

// Address returns the pool address
func (p *LendingPool) Address() common.Address {
	return p.address
}

// Premium returns the fee owed on amount
func (p *LendingPool) Premium(amount *uint256.Int) *uint256.Int {
	fee := new(uint256.Int).Mul(amount, uint256.NewInt(p.premiumBps))
	return fee.Div(fee, uint256.NewInt(10000))
}

// FlashLoanSimple sends amount of asset to receiver, runs its callback and pulls back
// amount plus premium. sender is recorded as the loan initiator.
func (p *LendingPool) FlashLoanSimple(sender common.Address, receiver FlashLoanReceiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error {
	return p.chain.Transact(func() error {
		amt, err := toWord(amount)
		if err != nil {
			return err
		}
		if amt.IsZero() {
			return revert("invalid flashloan amount")
		}
		if p.chain.BalanceOf(asset, p.address).Lt(amt) {
			return ErrInsufficientLiquidity
		}

		premium := p.Premium(amt)
		if err := p.chain.Transfer(asset, p.address, receiver.Address(), amt); err != nil {
			return err
		}

		ok, err := receiver.ExecuteOperation(p.address, asset, amt.ToBig(), premium.ToBig(), sender, params)
		if err != nil {
			return err
		}
		if !ok {
			return ErrFlashLoanRejected
		}

		owed := new(uint256.Int).Add(amt, premium)
		if err := p.chain.TransferFrom(asset, p.address, receiver.Address(), p.address, owed); err != nil {
			return fmt.Errorf("failed to pull repayment: %w", err)
		}

		p.chain.Emit(FlashLoan{
			Target:    receiver.Address(),
			Initiator: sender,
			Asset:     asset,
			Amount:    amt.ToBig(),
			Premium:   premium.ToBig(),
			Referral:  referralCode,
		})
		return nil
	})
}
