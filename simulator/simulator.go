package simulator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/utils"
)

// preflightGasLimit caps the eth_call of a flashloan arbitrage
const preflightGasLimit = 2_000_000

// Backend is the node access needed for a preflight
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
}

// SimulationResult represents the result of a transaction simulation
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Error   error
}

// Simulator dry-runs executeArbitrage against the deployed executor with eth_call
type Simulator struct {
	backend  Backend
	executor common.Address
	from     common.Address
}

// NewSimulator creates a preflight simulator. from must be the executor owner or every
// call reverts as unauthorized.
func NewSimulator(backend Backend, executor, from common.Address) *Simulator {
	return &Simulator{
		backend:  backend,
		executor: executor,
		from:     from,
	}
}

// SimulateArbitrage estimates gas for params and executes it with eth_call. A revert is
// reported in the result; only transport failures are returned as errors.
func (s *Simulator) SimulateArbitrage(ctx context.Context, p flashloan.ArbitrageParams) (*SimulationResult, error) {
	callData, err := flashloan.PackExecuteArbitrage(p)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeArbitrage: %w", err)
	}

	msg := ethereum.CallMsg{
		From: s.from,
		To:   &s.executor,
		Gas:  preflightGasLimit,
		Data: callData,
	}

	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		if utils.IsRevert(err) {
			return &SimulationResult{Success: false, Error: err}, nil
		}
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	if _, err := s.backend.CallContract(ctx, msg, nil); err != nil {
		if utils.IsRevert(err) {
			return &SimulationResult{Success: false, Error: err, GasUsed: gasUsed}, nil
		}
		return nil, fmt.Errorf("failed to call executor: %w", err)
	}

	return &SimulationResult{
		Success: true,
		GasUsed: gasUsed,
	}, nil
}
