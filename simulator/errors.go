package simulator

import (
	"errors"
	"fmt"
	"math/big"
)

// RevertError is a modeled EVM revert carrying its reason string
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func revert(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

// Programming-error reverts. None of these should occur under normal market movement.
var (
	ErrUnauthorized        = revert("caller is not the owner")
	ErrPaused              = revert("contract is paused")
	ErrReentrancy          = revert("reentrancy detected")
	ErrZeroAmount          = revert("borrow amount is zero")
	ErrEmptySwaps          = revert("swap list is empty")
	ErrInvalidVault        = revert("invalid vault address")
	ErrInvalidOwner        = revert("invalid owner address")
	ErrUnauthorizedCaller  = revert("unrecognized callback caller")
	ErrInvalidMinProfitBps = revert("min profit bps above 10000")
	ErrInvalidPayload      = revert("malformed callback payload")
	ErrUnknownLender       = revert("no lending pool at address")
	ErrAmountOverflow      = revert("amount overflows uint256")
	// ErrNothingToSwap means a leg's input token is not held, i.e. the legs do not chain
	ErrNothingToSwap       = revert("nothing to swap")
)

// Ledger and venue reverts
var (
	ErrInsufficientBalance   = revert("transfer amount exceeds balance")
	ErrInsufficientAllowance = revert("transfer amount exceeds allowance")
	ErrInsufficientLiquidity = revert("insufficient liquidity")
	ErrTooLittleReceived     = revert("too little received")
	ErrNoRoute               = revert("no route for pair")
	ErrUnknownRouter         = revert("no router at address")
	ErrFlashLoanRejected     = revert("flashloan receiver returned false")
)

// ErrPanicked wraps a panic raised while executing a transaction
var ErrPanicked = errors.New("transaction panicked")

// InsufficientProfitError is returned when the balance left after the swaps does not
// cover repayment plus the profit floor
type InsufficientProfitError struct {
	// Actual is balance - amountOwed. It is negative when principal was lost.
	Actual *big.Int
	// Required is the profit floor that had to be met
	Required *big.Int
	// Shortfall is amountOwed + Required - balance
	Shortfall *big.Int
}

func (e *InsufficientProfitError) Error() string {
	return fmt.Sprintf("insufficient profit: actual %s, required %s, shortfall %s",
		e.Actual, e.Required, e.Shortfall)
}

// SwapStatus classifies the outcome of a single swap leg
type SwapStatus int

const (
	SwapSucceeded SwapStatus = iota
	SwapReverted
	SwapUnknown
)

func (s SwapStatus) String() string {
	switch s {
	case SwapSucceeded:
		return "succeeded"
	case SwapReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// SwapFailedError identifies the failing leg of the swap sequence
type SwapFailedError struct {
	Index  int
	Status SwapStatus
	Reason error
}

func (e *SwapFailedError) Error() string {
	return fmt.Sprintf("swap %d %s: %v", e.Index, e.Status, e.Reason)
}

func (e *SwapFailedError) Unwrap() error {
	return e.Reason
}

var programmingErrors = []error{
	ErrUnauthorized,
	ErrPaused,
	ErrReentrancy,
	ErrUnauthorizedCaller,
	ErrInvalidPayload,
	ErrUnknownLender,
	ErrUnknownRouter,
	ErrNothingToSwap,
	ErrPanicked,
}

// IsMarketRevert reports whether err is one of the failures expected from adverse
// price movement (insufficient profit or a swap failing on price), as opposed to a
// programming or security error
func IsMarketRevert(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range programmingErrors {
		if errors.Is(err, target) {
			return false
		}
	}

	var profitErr *InsufficientProfitError
	if errors.As(err, &profitErr) {
		return true
	}
	var swapErr *SwapFailedError
	return errors.As(err, &swapErr)
}
