package utils

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardedCaller wraps a contract caller with rate limiting, a per-call timeout and an
// optional circuit breaker. Contract reverts do not count as breaker failures.
type GuardedCaller struct {
	inner       ethereum.ContractCaller
	limiter     *rate.Limiter
	waitTimeout time.Duration
	callTimeout time.Duration
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      *zap.Logger
}

// NewGuardedCaller creates a GuardedCaller around inner
func NewGuardedCaller(
	inner ethereum.ContractCaller,
	rl config.RateLimitConfig,
	cb config.CircuitBreakerConfig,
	callTimeout time.Duration,
	logger *zap.Logger,
) *GuardedCaller {
	g := &GuardedCaller{
		inner:       inner,
		limiter:     rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.BurstSize),
		waitTimeout: rl.WaitTimeout,
		callTimeout: callTimeout,
		logger:      logger,
	}

	if cb.Enabled {
		threshold := uint32(cb.ErrorThreshold)
		g.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:     "rpc-call",
			Interval: cb.ResetInterval,
			Timeout:  cb.CooldownPeriod,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || IsRevert(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return g
}

// CallContract implements ethereum.ContractCaller
func (g *GuardedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	call := func() ([]byte, error) {
		if g.callTimeout <= 0 {
			return g.inner.CallContract(ctx, msg, blockNumber)
		}
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		return g.inner.CallContract(callCtx, msg, blockNumber)
	}

	if g.breaker == nil {
		return call()
	}
	return g.breaker.Execute(call)
}

func (g *GuardedCaller) wait(ctx context.Context) error {
	waitCtx := ctx
	if g.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.waitTimeout)
		defer cancel()
	}
	if err := g.limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}
	return nil
}

// IsRevert reports whether err is an EVM revert rather than a transport failure
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// IsCircuitOpen reports whether err was returned because the breaker is open
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
