package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// VerdictViable marks a candidate that passed every cost check
const VerdictViable = "viable"

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at   INTEGER NOT NULL,
	token0        TEXT NOT NULL,
	token1        TEXT NOT NULL,
	buy_venue     TEXT NOT NULL,
	buy_pool      TEXT NOT NULL,
	buy_fee       INTEGER NOT NULL,
	sell_venue    TEXT NOT NULL,
	sell_pool     TEXT NOT NULL,
	sell_fee      INTEGER NOT NULL,
	gross_percent TEXT NOT NULL,
	borrow_amount TEXT NOT NULL,
	net_usd       TEXT NOT NULL,
	verdict       TEXT NOT NULL,
	min_profit    TEXT
);
CREATE INDEX IF NOT EXISTS idx_candidates_recorded_at ON candidates(recorded_at);
`

// Entry is one evaluated candidate
type Entry struct {
	RecordedAt time.Time
	Token0     common.Address
	Token1     common.Address

	BuyVenue  string
	BuyPool   common.Address
	BuyFee    uint32
	SellVenue string
	SellPool  common.Address
	SellFee   uint32

	GrossPercent decimal.Decimal
	BorrowAmount *big.Int
	NetUSD       decimal.Decimal
	Verdict      string

	// MinProfit is set only when executor params were built
	MinProfit *big.Int
}

// Journal is an append-only sqlite log of evaluated candidates
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal at path
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends e
func (j *Journal) Record(ctx context.Context, e Entry) error {
	var minProfit sql.NullString
	if e.MinProfit != nil {
		minProfit = sql.NullString{String: e.MinProfit.String(), Valid: true}
	}
	borrow := "0"
	if e.BorrowAmount != nil {
		borrow = e.BorrowAmount.String()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO candidates (recorded_at, token0, token1, buy_venue, buy_pool, buy_fee,
			sell_venue, sell_pool, sell_fee, gross_percent, borrow_amount, net_usd, verdict, min_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordedAt.UnixNano(), e.Token0.Hex(), e.Token1.Hex(),
		e.BuyVenue, e.BuyPool.Hex(), e.BuyFee,
		e.SellVenue, e.SellPool.Hex(), e.SellFee,
		e.GrossPercent.String(), borrow, e.NetUSD.String(), e.Verdict, minProfit,
	)
	if err != nil {
		return fmt.Errorf("failed to record candidate: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT recorded_at, token0, token1, buy_venue, buy_pool, buy_fee,
			sell_venue, sell_pool, sell_fee, gross_percent, borrow_amount, net_usd, verdict, min_profit
		FROM candidates ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                 Entry
			recordedAt                        int64
			token0, token1, buyPool, sellPool string
			gross, borrow, net                string
			minProfit                         sql.NullString
		)
		if err := rows.Scan(&recordedAt, &token0, &token1, &e.BuyVenue, &buyPool, &e.BuyFee,
			&e.SellVenue, &sellPool, &e.SellFee, &gross, &borrow, &net, &e.Verdict, &minProfit); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}

		e.RecordedAt = time.Unix(0, recordedAt)
		e.Token0 = common.HexToAddress(token0)
		e.Token1 = common.HexToAddress(token1)
		e.BuyPool = common.HexToAddress(buyPool)
		e.SellPool = common.HexToAddress(sellPool)
		if e.GrossPercent, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("corrupt gross_percent %q: %w", gross, err)
		}
		if e.NetUSD, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("corrupt net_usd %q: %w", net, err)
		}
		var ok bool
		if e.BorrowAmount, ok = new(big.Int).SetString(borrow, 10); !ok {
			return nil, fmt.Errorf("corrupt borrow_amount %q", borrow)
		}
		if minProfit.Valid {
			if e.MinProfit, ok = new(big.Int).SetString(minProfit.String, 10); !ok {
				return nil, fmt.Errorf("corrupt min_profit %q", minProfit.String)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByVerdict returns the number of entries recorded per verdict
func (j *Journal) CountByVerdict(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT verdict, COUNT(*) FROM candidates GROUP BY verdict")
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			verdict string
			n       int
		)
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, err
		}
		out[verdict] = n
	}
	return out, rows.Err()
}
