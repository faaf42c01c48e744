package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testEntry(at time.Time, verdict string) Entry {
	return Entry{
		RecordedAt:   at,
		Token0:       common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Token1:       common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		BuyVenue:     "uniswap",
		BuyPool:      common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		BuyFee:       500,
		SellVenue:    "sushiswap",
		SellPool:     common.HexToAddress("0x35644Fb61aFBc458bf92B15AdD6ABc1996Be5014"),
		SellFee:      3000,
		GrossPercent: decimal.RequireFromString("1.1289"),
		BorrowAmount: big.NewInt(1_000_000_000),
		NetUSD:       decimal.RequireFromString("9.8289"),
		Verdict:      verdict,
	}
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	first := testEntry(now.Add(-time.Second), "slippage")
	second := testEntry(now, VerdictViable)
	second.MinProfit = big.NewInt(4914462)

	require.NoError(t, j.Record(ctx, first))
	require.NoError(t, j.Record(ctx, second))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got := entries[0]
	assert.Equal(t, VerdictViable, got.Verdict)
	assert.Equal(t, second.BuyPool, got.BuyPool)
	assert.Equal(t, second.SellPool, got.SellPool)
	assert.Equal(t, second.Token0, got.Token0)
	assert.Equal(t, uint32(500), got.BuyFee)
	assert.Equal(t, uint32(3000), got.SellFee)
	assert.Equal(t, "sushiswap", got.SellVenue)
	assert.True(t, second.GrossPercent.Equal(got.GrossPercent))
	assert.True(t, second.NetUSD.Equal(got.NetUSD))
	assert.Equal(t, "1000000000", got.BorrowAmount.String())
	require.NotNil(t, got.MinProfit)
	assert.Equal(t, "4914462", got.MinProfit.String())
	assert.Equal(t, now.UnixNano(), got.RecordedAt.UnixNano())

	assert.Equal(t, "slippage", entries[1].Verdict)
	assert.Nil(t, entries[1].MinProfit)

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournalCountByVerdict(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	for i, verdict := range []string{VerdictViable, "slippage", "slippage", "min_profit"} {
		require.NoError(t, j.Record(ctx, testEntry(now.Add(time.Duration(i)), verdict)))
	}

	counts, err := j.CountByVerdict(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{VerdictViable: 1, "slippage": 2, "min_profit": 1}, counts)
}

func TestJournalReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, testEntry(time.Now(), VerdictViable)))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJournalNilBorrowAmount(t *testing.T) {
	j := openTestJournal(t)
	e := testEntry(time.Now(), "sizing")
	e.BorrowAmount = nil
	require.NoError(t, j.Record(context.Background(), e))

	entries, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0", entries[0].BorrowAmount.String())
}
