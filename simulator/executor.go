package simulator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/flashloan"
)

// Phase is the executor's position in the flashloan state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmed
	PhaseInCallback
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmed:
		return "armed"
	case PhaseInCallback:
		return "in_callback"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

const maxBps = 10000

// ArbitrageExecuted is emitted once a flashloan arbitrage has settled and its profit
// reached the vault
type ArbitrageExecuted struct {
	Asset   common.Address
	Amount  *big.Int
	Premium *big.Int
	Profit  *big.Int
	Vault   common.Address
}

// OwnershipTransferred is emitted by TransferOwnership
type OwnershipTransferred struct{ Old, New common.Address }

// VaultUpdated is emitted by SetVault
type VaultUpdated struct{ Old, New common.Address }

// PausedSet is emitted by SetPaused
type PausedSet struct{ Old, New bool }

// MinProfitBpsUpdated is emitted by SetMinProfitBps
type MinProfitBpsUpdated struct{ Old, New uint64 }

// EmergencyWithdrawal is emitted when the owner sweeps a token balance
type EmergencyWithdrawal struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

func (ArbitrageExecuted) EventName() string    { return "ArbitrageExecuted" }
func (OwnershipTransferred) EventName() string { return "OwnershipTransferred" }
func (VaultUpdated) EventName() string         { return "VaultUpdated" }
func (PausedSet) EventName() string            { return "PausedSet" }
func (MinProfitBpsUpdated) EventName() string  { return "MinProfitBpsUpdated" }
func (EmergencyWithdrawal) EventName() string  { return "EmergencyWithdrawal" }

// SwapResult is the outcome of one replayed swap leg
type SwapResult struct {
	Status    SwapStatus
	AmountIn  *big.Int
	AmountOut *big.Int
	Err       error
}

// Receipt describes a settled arbitrage
type Receipt struct {
	Asset   common.Address
	Amount  *big.Int
	Premium *big.Int
	Profit  *big.Int
	Vault   common.Address
	Swaps   []SwapResult
}

// ExecutorConfig is the executor's constructor arguments
type ExecutorConfig struct {
	Address      common.Address
	Owner        common.Address
	Vault        common.Address
	LendingPool  common.Address
	MinProfitBps uint64
	// ReferralCode is forwarded with every flashloan request
	ReferralCode uint16
}

type executorStorage struct {
	owner        common.Address
	vault        common.Address
	paused       bool
	minProfitBps uint64
	locked       bool
	phase        Phase
}

// execution holds per-call memory shared between entry and callback
type execution struct {
	premium *big.Int
	swaps   []SwapResult
}

// AtomicExecutor models the on-chain flashloan arbitrage contract: it borrows, replays
// the swap sequence in the lender's callback, enforces the profit floor and forwards
// profit to the vault, all or nothing
type AtomicExecutor struct {
	chain       *Chain
	address     common.Address
	lendingPool common.Address
	referral    uint16

	st      executorStorage
	pending *execution
}

// NewAtomicExecutor deploys an executor
func NewAtomicExecutor(chain *Chain, cfg ExecutorConfig) (*AtomicExecutor, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	if cfg.Vault == (common.Address{}) {
		return nil, ErrInvalidVault
	}
	if cfg.LendingPool == (common.Address{}) {
		return nil, fmt.Errorf("lending pool address is required")
	}
	if cfg.MinProfitBps > maxBps {
		return nil, ErrInvalidMinProfitBps
	}

	e := &AtomicExecutor{
		chain:       chain,
		address:     cfg.Address,
		lendingPool: cfg.LendingPool,
		referral:    cfg.ReferralCode,
		st: executorStorage{
			owner:        cfg.Owner,
			vault:        cfg.Vault,
			minProfitBps: cfg.MinProfitBps,
		},
	}
	chain.Deploy(cfg.Address, e)
	return e, nil
}

func (e *AtomicExecutor) snapshot() any { return e.st }

func (e *AtomicExecutor) restore(s any) { e.st = s.(executorStorage) }

// Address returns the executor address
func (e *AtomicExecutor) Address() common.Address { return e.address }

// Owner returns the current owner
func (e *AtomicExecutor) Owner() common.Address { return e.st.owner }

// Vault returns the profit recipient
func (e *AtomicExecutor) Vault() common.Address { return e.st.vault }

// Paused reports whether new executions are blocked
func (e *AtomicExecutor) Paused() bool { return e.st.paused }

// MinProfitBps returns the on-chain relative profit floor
func (e *AtomicExecutor) MinProfitBps() uint64 { return e.st.minProfitBps }

// Phase returns the state machine phase of the last execution
func (e *AtomicExecutor) Phase() Phase { return e.st.phase }

// Locked reports whether an execution is in flight
func (e *AtomicExecutor) Locked() bool { return e.st.locked }

func (e *AtomicExecutor) onlyOwner(caller common.Address) error {
	if caller != e.st.owner {
		return ErrUnauthorized
	}
	return nil
}

// enter is the guard of the swap entry point: owner, then pause, then lock. The returned
// release must be deferred by the caller.
func (e *AtomicExecutor) enter(caller common.Address) (func(), error) {
	if err := e.onlyOwner(caller); err != nil {
		return nil, err
	}
	if e.st.paused {
		return nil, ErrPaused
	}
	if e.st.locked {
		return nil, ErrReentrancy
	}
	e.st.locked = true
	return func() { e.st.locked = false }, nil
}

// admin is the guard of administrative operations: owner only, and never while an
// execution holds the lock
func (e *AtomicExecutor) admin(caller common.Address) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if e.st.locked {
		return ErrReentrancy
	}
	return nil
}

// ExecuteArbitrage borrows p.Amount of p.Asset from p.Lender, runs the swaps in the
// callback and sends realized profit to the vault. Any failure reverts everything.
func (e *AtomicExecutor) ExecuteArbitrage(caller common.Address, p flashloan.ArbitrageParams) (*Receipt, error) {
	var receipt *Receipt

	err := e.chain.Transact(func() error {
		release, err := e.enter(caller)
		if err != nil {
			return err
		}
		defer release()

		if p.Amount == nil || p.Amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		if len(p.Swaps) == 0 {
			return ErrEmptySwaps
		}
		contract, ok := e.chain.ContractAt(p.Lender)
		if !ok {
			return ErrUnknownLender
		}
		lender, ok := contract.(FlashLender)
		if !ok {
			return ErrUnknownLender
		}

		payload, err := flashloan.EncodePayload(p.Swaps, p.MinProfit)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}

		before := e.chain.BalanceOf(p.Asset, e.address)
		e.pending = &execution{}
		defer func() { e.pending = nil }()

		e.st.phase = PhaseArmed
		if err := lender.FlashLoanSimple(e.address, e, p.Asset, p.Amount, payload, e.referral); err != nil {
			return err
		}
		if e.st.phase != PhaseSettled {
			return revert("flashloan callback did not settle")
		}

		after := e.chain.BalanceOf(p.Asset, e.address)
		profit, underflow := new(uint256.Int).SubOverflow(after, before)
		if underflow {
			return &InsufficientProfitError{
				Actual:    new(big.Int).Sub(after.ToBig(), before.ToBig()),
				Required:  new(big.Int),
				Shortfall: new(big.Int).Sub(before.ToBig(), after.ToBig()),
			}
		}
		if err := e.chain.Transfer(p.Asset, e.address, e.st.vault, profit); err != nil {
			return err
		}

		receipt = &Receipt{
			Asset:   p.Asset,
			Amount:  new(big.Int).Set(p.Amount),
			Premium: e.pending.premium,
			Profit:  profit.ToBig(),
			Vault:   e.st.vault,
			Swaps:   e.pending.swaps,
		}
		e.chain.Emit(ArbitrageExecuted{
			Asset:   p.Asset,
			Amount:  receipt.Amount,
			Premium: receipt.Premium,
			Profit:  receipt.Profit,
			Vault:   receipt.Vault,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ExecuteOperation is the flashloan callback. Only the configured lending pool may call
// it, and only for a loan this executor initiated.
func (e *AtomicExecutor) ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error) {
	if caller != e.lendingPool || initiator != e.address {
		return false, ErrUnauthorizedCaller
	}
	if e.st.phase != PhaseArmed || e.pending == nil {
		return false, ErrUnauthorizedCaller
	}
	e.st.phase = PhaseInCallback

	swaps, minProfit, err := flashloan.DecodePayload(params)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	for i, s := range swaps {
		res := e.swap(s)
		e.pending.swaps = append(e.pending.swaps, res)
		if res.Status != SwapSucceeded {
			return false, &SwapFailedError{Index: i, Status: res.Status, Reason: res.Err}
		}
	}

	amt, err := toWord(amount)
	if err != nil {
		return false, err
	}
	prem, err := toWord(premium)
	if err != nil {
		return false, err
	}
	floor, err := toWord(minProfit)
	if err != nil {
		return false, err
	}
	bpsFloor := new(uint256.Int).Mul(amt, uint256.NewInt(e.st.minProfitBps))
	bpsFloor.Div(bpsFloor, uint256.NewInt(maxBps))
	if bpsFloor.Gt(floor) {
		floor = bpsFloor
	}

	owed := new(uint256.Int).Add(amt, prem)
	required, overflow := new(uint256.Int).AddOverflow(owed, floor)
	if overflow {
		return false, ErrAmountOverflow
	}

	balance := e.chain.BalanceOf(asset, e.address)
	if balance.Lt(required) {
		return false, &InsufficientProfitError{
			Actual:    new(big.Int).Sub(balance.ToBig(), owed.ToBig()),
			Required:  floor.ToBig(),
			Shortfall: new(big.Int).Sub(required.ToBig(), balance.ToBig()),
		}
	}

	e.chain.Approve(asset, e.address, caller, owed)
	e.pending.premium = prem.ToBig()
	e.st.phase = PhaseSettled
	return true, nil
}

// swap replays one instruction, approving the router for exactly the amount swapped
func (e *AtomicExecutor) swap(s flashloan.SwapInstruction) (res SwapResult) {
	contract, ok := e.chain.ContractAt(s.Router)
	if !ok {
		return SwapResult{Status: SwapUnknown, Err: ErrUnknownRouter}
	}
	router, ok := contract.(dex.SwapExecutor)
	if !ok {
		return SwapResult{Status: SwapUnknown, Err: ErrUnknownRouter}
	}

	amountIn, err := toWord(s.AmountIn)
	if err != nil {
		return SwapResult{Status: SwapReverted, Err: err}
	}
	if s.UsesFullBalance() {
		amountIn = e.chain.BalanceOf(s.TokenIn, e.address)
	}
	if amountIn.IsZero() {
		return SwapResult{Status: SwapReverted, Err: ErrNothingToSwap}
	}
	res.AmountIn = amountIn.ToBig()

	defer func() {
		if r := recover(); r != nil {
			res.Status = SwapUnknown
			res.Err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	e.chain.Approve(s.TokenIn, e.address, s.Router, amountIn)
	out, err := router.ExactInputSingle(e.address, dex.ExactInputSingleParams{
		TokenIn:      s.TokenIn,
		TokenOut:     s.TokenOut,
		Fee:          s.Fee,
		Recipient:    e.address,
		AmountIn:     amountIn.ToBig(),
		AmountOutMin: s.MinAmountOut,
	})
	if err != nil {
		res.Err = err
		res.Status = SwapUnknown
		var rev *RevertError
		if errors.As(err, &rev) {
			res.Status = SwapReverted
		}
		return res
	}

	res.Status = SwapSucceeded
	res.AmountOut = out
	return res
}

// TransferOwnership hands the contract to newOwner
func (e *AtomicExecutor) TransferOwnership(caller, newOwner common.Address) error {
	return e.chain.Transact(func() error {
		if err := e.admin(caller); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return ErrInvalidOwner
		}
		old := e.st.owner
		e.st.owner = newOwner
		e.chain.Emit(OwnershipTransferred{Old: old, New: newOwner})
		return nil
	})
}

// SetVault changes the profit recipient
func (e *AtomicExecutor) SetVault(caller, vault common.Address) error {
	return e.chain.Transact(func() error {
		if err := e.admin(caller); err != nil {
			return err
		}
		if vault == (common.Address{}) {
			return ErrInvalidVault
		}
		old := e.st.vault
		e.st.vault = vault
		e.chain.Emit(VaultUpdated{Old: old, New: vault})
		return nil
	})
}

// SetPaused toggles the pause gate on ExecuteArbitrage
func (e *AtomicExecutor) SetPaused(caller common.Address, paused bool) error {
	return e.chain.Transact(func() error {
		if err := e.admin(caller); err != nil {
			return err
		}
		old := e.st.paused
		e.st.paused = paused
		e.chain.Emit(PausedSet{Old: old, New: paused})
		return nil
	})
}

// SetMinProfitBps sets the relative profit floor enforced at settlement
func (e *AtomicExecutor) SetMinProfitBps(caller common.Address, bps uint64) error {
	return e.chain.Transact(func() error {
		if err := e.admin(caller); err != nil {
			return err
		}
		if bps > maxBps {
			return ErrInvalidMinProfitBps
		}
		old := e.st.minProfitBps
		e.st.minProfitBps = bps
		e.chain.Emit(MinProfitBpsUpdated{Old: old, New: bps})
		return nil
	})
}

// EmergencyWithdraw sends the executor's whole balance of token to the vault
func (e *AtomicExecutor) EmergencyWithdraw(caller, token common.Address) (*big.Int, error) {
	var amount *big.Int
	err := e.chain.Transact(func() error {
		if err := e.admin(caller); err != nil {
			return err
		}
		bal := e.chain.BalanceOf(token, e.address)
		if err := e.chain.Transfer(token, e.address, e.st.vault, bal); err != nil {
			return err
		}
		amount = bal.ToBig()
		e.chain.Emit(EmergencyWithdrawal{Token: token, To: e.st.vault, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}
