// Package ledger keeps per-depositor balances in first-deposit order.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount = errors.New("amount must be non-negative")
	ErrNotEmpty      = errors.New("ledger is not empty")
)

// Entry is the cumulative amount credited to one account.
type Entry struct {
	Account common.Address
	Amount  *big.Int
}

// Ledger maps accounts to balances. The running total always equals the sum
// of all entries.
type Ledger struct {
	mu       sync.Mutex
	order    []common.Address
	balances map[common.Address]*big.Int
	total    *big.Int
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		total:    new(big.Int),
	}
}

// Credit adds amount to the account and returns its new balance. The account
// is registered on first credit even when amount is zero.
func (l *Ledger) Credit(account common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		balance = new(big.Int)
		l.balances[account] = balance
		l.order = append(l.order, account)
	}
	balance.Add(balance, amount)
	l.total.Add(l.total, amount)
	return new(big.Int).Set(balance), nil
}

// BalanceOf returns the account balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// TotalBalance returns the sum of all balances.
func (l *Ledger) TotalBalance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.total)
}

// Len returns the number of registered accounts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// ClearAll removes every entry and returns the total held before the call.
func (l *Ledger) ClearAll() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior := l.total
	l.order = nil
	l.balances = make(map[common.Address]*big.Int)
	l.total = new(big.Int)
	return prior
}

// Snapshot copies the current entries.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(l.order))
	for _, account := range l.order {
		entries = append(entries, Entry{
			Account: account,
			Amount:  new(big.Int).Set(l.balances[account]),
		})
	}
	return Snapshot{entries: entries, total: new(big.Int).Set(l.total)}
}

// Restore loads persisted entries into an empty ledger, keeping their order.
func (l *Ledger) Restore(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.order) > 0 {
		return ErrNotEmpty
	}
	return l.load(entries)
}

// Reset replaces the whole ledger with entries. On error the ledger is unchanged.
func (l *Ledger) Reset(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(entries)
}

func (l *Ledger) load(entries []Entry) error {
	balances := make(map[common.Address]*big.Int, len(entries))
	order := make([]common.Address, 0, len(entries))
	total := new(big.Int)
	for _, entry := range entries {
		if entry.Amount == nil || entry.Amount.Sign() < 0 {
			return fmt.Errorf("restore %s: %w", entry.Account.Hex(), ErrInvalidAmount)
		}
		if _, dup := balances[entry.Account]; dup {
			return fmt.Errorf("restore %s: duplicate account", entry.Account.Hex())
		}
		balances[entry.Account] = new(big.Int).Set(entry.Amount)
		order = append(order, entry.Account)
		total.Add(total, entry.Amount)
	}

	l.balances = balances
	l.order = order
	l.total = total
	return nil
}

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	entries []Entry
	total   *big.Int
}

// All yields accounts and balances in first-deposit order. It can be ranged
// over any number of times and yields copies.
func (s Snapshot) All() iter.Seq2[common.Address, *big.Int] {
	return func(yield func(common.Address, *big.Int) bool) {
		for _, entry := range s.entries {
			if !yield(entry.Account, new(big.Int).Set(entry.Amount)) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for account, amount := range s.All() {
		out = append(out, Entry{Account: account, Amount: amount})
	}
	return out
}

func (s Snapshot) Len() int {
	return len(s.entries)
}

// Total returns the sum of the snapshot's entries.
func (s Snapshot) Total() *big.Int {
	if s.total == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.total)
}
