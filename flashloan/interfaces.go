package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider defines the interface for flash loan providers
type Provider interface {
	// Address is the lending pool the executor borrows from
	Address() common.Address
	// PremiumBps returns the last known flashloan premium
	PremiumBps() uint64
	// Refresh re-reads the premium from chain
	Refresh(ctx context.Context) (uint64, error)
	// Fee returns the premium owed on amount
	Fee(amount *big.Int) *big.Int
	String() string
}
