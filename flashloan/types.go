package flashloan

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotViable           = errors.New("candidate is not viable")
	ErrUnknownVenue        = errors.New("no router configured for venue")
	ErrExceedsMaxFlashloan = errors.New("borrow amount exceeds max flashloan")
	ErrInvalidParams       = errors.New("invalid arbitrage params")
)

// SwapInstruction is one exact-input swap replayed by the executor.
// A zero AmountIn means "swap the executor's whole balance of TokenIn".
type SwapInstruction struct {
	Router       common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
}

// UsesFullBalance reports whether the swap consumes the full balance of TokenIn
func (s SwapInstruction) UsesFullBalance() bool {
	return s.AmountIn == nil || s.AmountIn.Sign() == 0
}

// ArbitrageParams is everything the executor needs to run one flashloan arbitrage
type ArbitrageParams struct {
	Lender    common.Address
	Asset     common.Address
	Amount    *big.Int
	MinProfit *big.Int // absolute, in Asset's smallest unit
	Swaps     []SwapInstruction
}

// Validate checks the params are well formed before they are encoded
func (p ArbitrageParams) Validate() error {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if p.MinProfit != nil && p.MinProfit.Sign() < 0 {
		return fmt.Errorf("%w: negative min profit", ErrInvalidParams)
	}
	if len(p.Swaps) == 0 {
		return fmt.Errorf("%w: no swaps", ErrInvalidParams)
	}
	for i, s := range p.Swaps {
		if s.AmountIn != nil && s.AmountIn.Sign() < 0 {
			return fmt.Errorf("%w: swap %d has negative amount", ErrInvalidParams, i)
		}
		if s.MinAmountOut != nil && s.MinAmountOut.Sign() < 0 {
			return fmt.Errorf("%w: swap %d has negative min output", ErrInvalidParams, i)
		}
		if s.Fee >= 1<<24 {
			return fmt.Errorf("%w: swap %d fee %d overflows uint24", ErrInvalidParams, i, s.Fee)
		}
	}
	return nil
}
