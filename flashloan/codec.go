package flashloan

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// swapTuple is the ABI shape of a SwapInstruction. uint24 packs as *big.Int.
type swapTuple struct {
	Router       common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          *big.Int
	AmountIn     *big.Int
	MinAmountOut *big.Int
}

var swapComponents = []abi.ArgumentMarshaling{
	{Name: "router", Type: "address"},
	{Name: "tokenIn", Type: "address"},
	{Name: "tokenOut", Type: "address"},
	{Name: "fee", Type: "uint24"},
	{Name: "amountIn", Type: "uint256"},
	{Name: "minAmountOut", Type: "uint256"},
}

// ABI types
var (
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiSwaps, _   = abi.NewType("tuple[]", "", swapComponents)
)

// payloadArgs is the opaque payload handed to the lender and replayed in the callback
var payloadArgs = abi.Arguments{
	{Name: "swaps", Type: abiSwaps},
	{Name: "minProfit", Type: abiUint256},
}

// Executor ABI
var executorABI, _ = abi.JSON(strings.NewReader(`[
	{
		"inputs": [
			{"internalType": "address", "name": "lender", "type": "address"},
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "minProfit", "type": "uint256"},
			{
				"components": [
					{"internalType": "address", "name": "router", "type": "address"},
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "minAmountOut", "type": "uint256"}
				],
				"internalType": "struct SwapInstruction[]",
				"name": "swaps",
				"type": "tuple[]"
			}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`))

func zeroIfNil(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func toTuples(swaps []SwapInstruction) []swapTuple {
	out := make([]swapTuple, len(swaps))
	for i, s := range swaps {
		out[i] = swapTuple{
			Router:       s.Router,
			TokenIn:      s.TokenIn,
			TokenOut:     s.TokenOut,
			Fee:          new(big.Int).SetUint64(uint64(s.Fee)),
			AmountIn:     zeroIfNil(s.AmountIn),
			MinAmountOut: zeroIfNil(s.MinAmountOut),
		}
	}
	return out
}

func fromTuples(tuples []swapTuple) []SwapInstruction {
	out := make([]SwapInstruction, len(tuples))
	for i, t := range tuples {
		out[i] = SwapInstruction{
			Router:       t.Router,
			TokenIn:      t.TokenIn,
			TokenOut:     t.TokenOut,
			Fee:          uint32(t.Fee.Uint64()),
			AmountIn:     t.AmountIn,
			MinAmountOut: t.MinAmountOut,
		}
	}
	return out
}

// EncodePayload encodes the swap sequence and profit floor passed through the flashloan
func EncodePayload(swaps []SwapInstruction, minProfit *big.Int) ([]byte, error) {
	packed, err := payloadArgs.Pack(toTuples(swaps), zeroIfNil(minProfit))
	if err != nil {
		return nil, fmt.Errorf("failed to pack payload: %w", err)
	}
	return packed, nil
}

// DecodePayload is the inverse of EncodePayload
func DecodePayload(data []byte) ([]SwapInstruction, *big.Int, error) {
	values, err := payloadArgs.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack payload: %w", err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("unexpected payload arity %d", len(values))
	}

	tuples := *abi.ConvertType(values[0], new([]swapTuple)).(*[]swapTuple)
	minProfit, ok := values[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected min profit type %T", values[1])
	}
	return fromTuples(tuples), minProfit, nil
}

// EncodeParams ABI-encodes params as the executeArbitrage argument list, without selector
func EncodeParams(p ArbitrageParams) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	method := executorABI.Methods["executeArbitrage"]
	packed, err := method.Inputs.Pack(p.Lender, p.Asset, p.Amount, zeroIfNil(p.MinProfit), toTuples(p.Swaps))
	if err != nil {
		return nil, fmt.Errorf("failed to pack arbitrage params: %w", err)
	}
	return packed, nil
}

// DecodeParams is the inverse of EncodeParams
func DecodeParams(data []byte) (ArbitrageParams, error) {
	var p ArbitrageParams

	method := executorABI.Methods["executeArbitrage"]
	values, err := method.Inputs.Unpack(data)
	if err != nil {
		return p, fmt.Errorf("failed to unpack arbitrage params: %w", err)
	}
	if len(values) != 5 {
		return p, fmt.Errorf("unexpected params arity %d", len(values))
	}

	p.Lender = values[0].(common.Address)
	p.Asset = values[1].(common.Address)
	p.Amount = values[2].(*big.Int)
	p.MinProfit = values[3].(*big.Int)
	p.Swaps = fromTuples(*abi.ConvertType(values[4], new([]swapTuple)).(*[]swapTuple))
	return p, nil
}

// PackExecuteArbitrage builds the executor transaction input for params
func PackExecuteArbitrage(p ArbitrageParams) ([]byte, error) {
	args, err := EncodeParams(p)
	if err != nil {
		return nil, err
	}
	id := executorABI.Methods["executeArbitrage"].ID
	input := make([]byte, 0, len(id)+len(args))
	input = append(input, id...)
	return append(input, args...), nil
}

// UnpackExecuteArbitrage decodes executor transaction input
func UnpackExecuteArbitrage(input []byte) (ArbitrageParams, error) {
	id := executorABI.Methods["executeArbitrage"].ID
	if len(input) < len(id) || !bytes.Equal(input[:len(id)], id) {
		return ArbitrageParams{}, fmt.Errorf("input is not an executeArbitrage call")
	}
	return DecodeParams(input[len(id):])
}
