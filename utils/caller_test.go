package utils

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubCaller struct {
	calls atomic.Int32
	err   error
	out   []byte
}

func (s *stubCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	s.calls.Add(1)
	return s.out, s.err
}

type revertError struct{}

func (revertError) Error() string          { return "execution reverted" }
func (revertError) ErrorCode() int         { return 3 }
func (revertError) ErrorData() interface{} { return "0x" }

var (
	openLimit = config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000, WaitTimeout: time.Second}
	breaker   = config.CircuitBreakerConfig{Enabled: true, ErrorThreshold: 3, ResetInterval: time.Minute, CooldownPeriod: time.Minute}
)

func TestGuardedCallerPassesThrough(t *testing.T) {
	inner := &stubCaller{out: []byte{1, 2, 3}}
	g := NewGuardedCaller(inner, openLimit, config.CircuitBreakerConfig{}, time.Second, zaptest.NewLogger(t))

	out, err := g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestGuardedCallerTripsOnTransportErrors(t *testing.T) {
	inner := &stubCaller{err: errors.New("connection refused")}
	g := NewGuardedCaller(inner, openLimit, breaker, time.Second, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		_, err := g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}

	_, err := g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, int32(3), inner.calls.Load(), "open breaker must not reach the node")
}

func TestGuardedCallerIgnoresReverts(t *testing.T) {
	inner := &stubCaller{err: revertError{}}
	g := NewGuardedCaller(inner, openLimit, breaker, time.Second, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		_, err := g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
		require.Error(t, err)
		assert.True(t, IsRevert(err))
		assert.False(t, IsCircuitOpen(err))
	}
	assert.Equal(t, int32(10), inner.calls.Load())
}

func TestGuardedCallerRateLimitTimeout(t *testing.T) {
	inner := &stubCaller{}
	slow := config.RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, WaitTimeout: 10 * time.Millisecond}
	g := NewGuardedCaller(inner, slow, config.CircuitBreakerConfig{}, time.Second, zaptest.NewLogger(t))

	_, err := g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.NoError(t, err)

	_, err = g.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait failed")
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestIsRevert(t *testing.T) {
	assert.False(t, IsRevert(nil))
	assert.False(t, IsRevert(errors.New("dial tcp: timeout")))
	assert.True(t, IsRevert(errors.New("execution reverted: STF")))
	assert.True(t, IsRevert(revertError{}))
}
