package simulator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a log emitted by a modeled contract
type Event interface {
	EventName() string
}

// stateful contracts have their storage snapshotted together with the token ledger
type stateful interface {
	snapshot() any
	restore(any)
}

// toWord converts a call argument into an EVM word
func toWord(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, ErrAmountOverflow
	}
	w, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return w, nil
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type ledger struct {
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[allowanceKey]*uint256.Int
}

func (l ledger) clone() ledger {
	out := ledger{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int, len(l.balances)),
		allowances: make(map[common.Address]map[allowanceKey]*uint256.Int, len(l.allowances)),
	}
	for token, holders := range l.balances {
		m := make(map[common.Address]*uint256.Int, len(holders))
		for holder, bal := range holders {
			m[holder] = bal.Clone()
		}
		out.balances[token] = m
	}
	for token, approvals := range l.allowances {
		m := make(map[allowanceKey]*uint256.Int, len(approvals))
		for key, amt := range approvals {
			m[key] = amt.Clone()
		}
		out.allowances[token] = m
	}
	return out
}

type snapshot struct {
	ledger  ledger
	events  int
	storage map[common.Address]any
}

// Chain is an in-memory model of the ERC20 state and contracts touched by one
// flashloan arbitrage. Every state-changing entry point runs inside Transact, which
// rolls back balances, allowances, contract storage and events when it fails.
type Chain struct {
	ledger    ledger
	events    []Event
	contracts map[common.Address]any
}

// NewChain creates an empty chain
func NewChain() *Chain {
	return &Chain{
		ledger: ledger{
			balances:   make(map[common.Address]map[common.Address]*uint256.Int),
			allowances: make(map[common.Address]map[allowanceKey]*uint256.Int),
		},
		contracts: make(map[common.Address]any),
	}
}

// Deploy registers a contract at addr
func (c *Chain) Deploy(addr common.Address, contract any) {
	c.contracts[addr] = contract
}

// ContractAt returns the contract deployed at addr
func (c *Chain) ContractAt(addr common.Address) (any, bool) {
	contract, ok := c.contracts[addr]
	return contract, ok
}

// BalanceOf returns a copy of holder's balance of token
func (c *Chain) BalanceOf(token, holder common.Address) *uint256.Int {
	if bal, ok := c.ledger.balances[token][holder]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (c *Chain) setBalance(token, holder common.Address, amount *uint256.Int) {
	holders, ok := c.ledger.balances[token]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		c.ledger.balances[token] = holders
	}
	holders[holder] = amount
}

// Mint credits amount of token to holder
func (c *Chain) Mint(token, holder common.Address, amount *uint256.Int) error {
	bal, overflow := new(uint256.Int).AddOverflow(c.BalanceOf(token, holder), amount)
	if overflow {
		return revert("balance overflow")
	}
	c.setBalance(token, holder, bal)
	return nil
}

// Transfer moves amount of token from one holder to another
func (c *Chain) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	fromBal := c.BalanceOf(token, from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, overflow := new(uint256.Int).AddOverflow(c.BalanceOf(token, to), amount)
	if overflow {
		return revert("balance overflow")
	}

	c.setBalance(token, from, fromBal.Sub(fromBal, amount))
	c.setBalance(token, to, toBal)
	return nil
}

// Approve sets spender's allowance over owner's token
func (c *Chain) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	approvals, ok := c.ledger.allowances[token]
	if !ok {
		approvals = make(map[allowanceKey]*uint256.Int)
		c.ledger.allowances[token] = approvals
	}
	approvals[allowanceKey{owner: owner, spender: spender}] = amount.Clone()
}

// Allowance returns a copy of spender's allowance over owner's token
func (c *Chain) Allowance(token, owner, spender common.Address) *uint256.Int {
	if amt, ok := c.ledger.allowances[token][allowanceKey{owner: owner, spender: spender}]; ok {
		return amt.Clone()
	}
	return new(uint256.Int)
}

// TransferFrom moves amount of token from owner to recipient using spender's allowance
func (c *Chain) TransferFrom(token, spender, owner, recipient common.Address, amount *uint256.Int) error {
	allowed := c.Allowance(token, owner, spender)
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := c.Transfer(token, owner, recipient, amount); err != nil {
		return err
	}
	c.Approve(token, owner, spender, allowed.Sub(allowed, amount))
	return nil
}

// Emit appends an event to the log
func (c *Chain) Emit(e Event) {
	c.events = append(c.events, e)
}

// Events returns every event emitted by committed transactions
func (c *Chain) Events() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Chain) snapshot() snapshot {
	s := snapshot{
		ledger:  c.ledger.clone(),
		events:  len(c.events),
		storage: make(map[common.Address]any),
	}
	for addr, contract := range c.contracts {
		if sf, ok := contract.(stateful); ok {
			s.storage[addr] = sf.snapshot()
		}
	}
	return s
}

func (c *Chain) restore(s snapshot) {
	c.ledger = s.ledger
	c.events = c.events[:s.events]
	for addr, st := range s.storage {
		if sf, ok := c.contracts[addr].(stateful); ok {
			sf.restore(st)
		}
	}
}

// Transact runs fn atomically. If fn returns an error or panics, every state change
// it made is discarded.
func (c *Chain) Transact(fn func() error) (err error) {
	snap := c.snapshot()
	defer func() {
		if r := recover(); r != nil {
			c.restore(snap)
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			return
		}
		if err != nil {
			c.restore(snap)
		}
	}()
	return fn()
}
