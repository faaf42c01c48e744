package simulator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flasharb/dex"
)

var (
	_ dex.SwapExecutor = (*Router)(nil)
	_ dex.Quoter       = (*Router)(nil)
)

type routeKey struct {
	tokenIn  common.Address
	tokenOut common.Address
	fee      uint32
}

type rate struct {
	num *uint256.Int
	den *uint256.Int
}

// Swap is emitted by the router for every executed swap
type Swap struct {
	Router    common.Address
	Sender    common.Address
	Recipient common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	Fee       uint32
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (Swap) EventName() string { return "Swap" }

// Router is a fixed-rate exact-input-single router. Its inventory is its own token
// balance on the chain.
type Router struct {
	chain   *Chain
	address common.Address
	routes  map[routeKey]rate

	// OnSwap runs after the input has been pulled and before output is paid, the point
	// where a hostile pool gets control
	OnSwap func(sender common.Address, params dex.ExactInputSingleParams) error
}

// NewRouter deploys a router at address
func NewRouter(chain *Chain, address common.Address) *Router {
	r := &Router{chain: chain, address: address, routes: make(map[routeKey]rate)}
	chain.Deploy(address, r)
	return r
}

// Address returns the router address
func (r *Router) Address() common.Address {
	return r.address
}

// SetRate makes tokenIn→tokenOut at fee pay amountIn*num/den
func (r *Router) SetRate(tokenIn, tokenOut common.Address, fee uint32, num, den uint64) {
	r.routes[routeKey{tokenIn, tokenOut, fee}] = rate{num: uint256.NewInt(num), den: uint256.NewInt(den)}
}

func (r *Router) amountOut(tokenIn, tokenOut common.Address, fee uint32, amountIn *uint256.Int) (*uint256.Int, error) {
	rt, ok := r.routes[routeKey{tokenIn, tokenOut, fee}]
	if !ok || rt.den.IsZero() {
		return nil, ErrNoRoute
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amountIn, rt.num, rt.den)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// QuoteExactInputSingle prices a swap without executing it
func (r *Router) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	in, err := toWord(amountIn)
	if err != nil {
		return nil, err
	}
	out, err := r.amountOut(tokenIn, tokenOut, fee, in)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// ExactInputSingle pulls AmountIn of TokenIn from sender and pays the output to Recipient
func (r *Router) ExactInputSingle(sender common.Address, params dex.ExactInputSingleParams) (*big.Int, error) {
	var amountOut *big.Int
	err := r.chain.Transact(func() error {
		in, err := toWord(params.AmountIn)
		if err != nil {
			return err
		}
		minOut, err := toWord(params.AmountOutMin)
		if err != nil {
			return err
		}

		out, err := r.amountOut(params.TokenIn, params.TokenOut, params.Fee, in)
		if err != nil {
			return err
		}
		if out.Lt(minOut) {
			return ErrTooLittleReceived
		}
		if r.chain.BalanceOf(params.TokenOut, r.address).Lt(out) {
			return ErrInsufficientLiquidity
		}

		if err := r.chain.TransferFrom(params.TokenIn, r.address, sender, r.address, in); err != nil {
			return err
		}
		if r.OnSwap != nil {
			if err := r.OnSwap(sender, params); err != nil {
				return err
			}
		}
		if err := r.chain.Transfer(params.TokenOut, r.address, params.Recipient, out); err != nil {
			return err
		}

		amountOut = out.ToBig()
		r.chain.Emit(Swap{
			Router:    r.address,
			Sender:    sender,
			Recipient: params.Recipient,
			TokenIn:   params.TokenIn,
			TokenOut:  params.TokenOut,
			Fee:       params.Fee,
			AmountIn:  in.ToBig(),
			AmountOut: amountOut,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}
