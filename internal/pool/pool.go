// Package pool implements the SimpleBank fund pool: gated deposits into a
// shared ledger and an owner-only sweep.
package pool

//go:generate mockgen -destination=mocks/mock_pool.go -package=mocks simpleBank/internal/pool Store,Settler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"simpleBank/internal/gate"
	"simpleBank/internal/ledger"
	"simpleBank/internal/model"
	"simpleBank/internal/storage"
)

// Store persists the ledger. Update serializes mutations across every
// process sharing the store and commits only when fn returns nil.
type Store interface {
	LoadState(ctx context.Context) (model.PoolState, bool, error)
	InitState(ctx context.Context, owner string) error
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
}

// Settler hands a withdrawal to whatever actually moves the funds. It is
// used by pools without a Store; a Store records receipts itself.
type Settler interface {
	Settle(ctx context.Context, w model.Withdrawal) error
}

// Config holds the pool's collaborators and admission settings.
type Config struct {
	Owner     common.Address
	Gate      *gate.Gate
	Threshold *big.Int
	Scale     uint8
	Ledger    *ledger.Ledger
	Store     Store
	Settler   Settler
	Logger    *zap.Logger
	Now       func() time.Time
	// Create lets Open initialize a store that holds no pool yet.
	Create bool
}

// Pool is safe for concurrent use. Deposit and Withdraw run under one lock
// from the oracle read to the ledger mutation; with a Store that lock is the
// store's own, shared by every process.
type Pool struct {
	owner     common.Address
	gate      *gate.Gate
	threshold *big.Int
	scale     uint8
	ledger    *ledger.Ledger
	store     Store
	settler   Settler
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// New builds a pool owned by cfg.Owner without loading any persisted state.
func New(cfg Config) (*Pool, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("admission gate is nil")
	}
	if cfg.Threshold == nil || cfg.Threshold.Sign() <= 0 {
		return nil, fmt.Errorf("threshold must be positive")
	}
	if cfg.Store != nil && cfg.Settler != nil {
		return nil, fmt.Errorf("settler cannot be combined with a store")
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pool{
		owner:     cfg.Owner,
		gate:      cfg.Gate,
		threshold: new(big.Int).Set(cfg.Threshold),
		scale:     cfg.Scale,
		ledger:    cfg.Ledger,
		store:     cfg.Store,
		settler:   cfg.Settler,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Open builds a pool backed by cfg.Store. A pool that was persisted before
// keeps its owner and balances; a zero cfg.Owner adopts the persisted owner.
// An empty store is initialized only when cfg.Create is set.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	state, ok, err := cfg.Store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pool state: %w", err)
	}
	if !ok && !cfg.Create {
		return nil, ErrNotDeployed
	}

	var entries []ledger.Entry
	if ok {
		if !common.IsHexAddress(state.Owner) {
			return nil, fmt.Errorf("invalid persisted owner: %s", state.Owner)
		}
		persisted := common.HexToAddress(state.Owner)
		if cfg.Owner == (common.Address{}) {
			cfg.Owner = persisted
		} else if cfg.Owner != persisted {
			return nil, fmt.Errorf("%w: %s != %s", ErrOwnerMismatch, cfg.Owner.Hex(), persisted.Hex())
		}

		entries, err = entriesFromModel(state.Entries)
		if err != nil {
			return nil, err
		}
	}

	p, err := New(cfg)
	if err != nil {
		return nil, err
	}

	if ok {
		if err := p.ledger.Restore(entries); err != nil {
			return nil, fmt.Errorf("restore ledger: %w", err)
		}
		if len(state.Pending) > 0 {
			p.logger.Warn("withdrawal receipts waiting for delivery", zap.Int("pending", len(state.Pending)))
		}
		p.logger.Info("pool restored",
			zap.String("owner", p.owner.Hex()),
			zap.Int("accounts", len(entries)),
			zap.String("total", p.ledger.TotalBalance().String()),
		)
		return p, nil
	}

	if err := cfg.Store.InitState(ctx, p.owner.Hex()); err != nil {
		return nil, fmt.Errorf("init pool state: %w", err)
	}
	p.logger.Info("pool created", zap.String("owner", p.owner.Hex()))
	return p, nil
}

// Owner returns the account allowed to withdraw.
func (p *Pool) Owner() common.Address {
	return p.owner
}

// Deposit credits amount to caller if it meets the live entrance fee.
func (p *Pool) Deposit(ctx context.Context, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return ErrZeroAmount
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store == nil {
		if err := p.admit(ctx, caller, amount); err != nil {
			return err
		}
		balance, err := p.ledger.Credit(caller, amount)
		if err != nil {
			return err
		}
		p.logDeposit(caller, amount, balance)
		return nil
	}

	var balance *big.Int
	var committed []ledger.Entry
	err := p.update(ctx, func(tx storage.Tx) error {
		if err := p.admit(ctx, caller, amount); err != nil {
			return err
		}
		updated, err := tx.Credit(ctx, model.BalanceEntry{Account: caller.Hex(), Amount: amount.String()})
		if err != nil {
			return fmt.Errorf("persist balance: %w", err)
		}
		if balance, err = model.ParseAmount(updated.Amount); err != nil {
			return fmt.Errorf("persisted balance of %s: %w", caller.Hex(), err)
		}
		committed, err = p.readEntries(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	if err := p.ledger.Reset(committed); err != nil {
		return fmt.Errorf("refresh ledger: %w", err)
	}
	p.logDeposit(caller, amount, balance)
	return nil
}

// Withdraw sweeps the whole pool to the owner and resets the ledger. It
// returns the amount withdrawn, zero for an empty pool.
func (p *Pool) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	if caller != p.owner {
		p.logger.Warn("withdraw rejected", zap.String("caller", caller.Hex()))
		return nil, ErrNotOwner
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store == nil {
		return p.withdrawLocal(ctx)
	}

	withdrawn := new(big.Int)
	accounts := 0
	receiptID := ""
	err := p.update(ctx, func(tx storage.Tx) error {
		removed, err := tx.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear persisted balances: %w", err)
		}
		entries, err := entriesFromModel(removed)
		if err != nil {
			return err
		}
		withdrawn, accounts = sumEntries(entries), len(entries)
		if withdrawn.Sign() == 0 {
			return nil
		}
		receipt := p.receipt(removed, withdrawn)
		if err := tx.Settle(ctx, receipt); err != nil {
			return fmt.Errorf("settle withdrawal: %w", err)
		}
		receiptID = receipt.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receiptID != "" {
		p.logger.Info("withdrawal settled", zap.String("receipt", receiptID))
	}

	p.ledger.ClearAll()
	p.logWithdraw(withdrawn, accounts)
	return withdrawn, nil
}

// Refresh reloads the ledger from the store, picking up changes made by other
// processes. It is a no-op for pools without a store.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok, err := p.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load pool state: %w", err)
	}
	if !ok {
		return ErrNotDeployed
	}
	entries, err := entriesFromModel(state.Entries)
	if err != nil {
		return err
	}
	return p.ledger.Reset(entries)
}

// EntranceFee returns the minimum deposit at the current rate.
func (p *Pool) EntranceFee(ctx context.Context) (*big.Int, error) {
	return p.gate.MinimumDeposit(ctx, p.threshold, p.scale)
}

// EntranceFeeQuote returns the entrance fee with the rate used to compute it.
func (p *Pool) EntranceFeeQuote(ctx context.Context) (gate.Quote, error) {
	return p.gate.Quote(ctx, p.threshold, p.scale)
}

// BalancesSnapshot returns the ledger entries in first-deposit order.
func (p *Pool) BalancesSnapshot() ledger.Snapshot {
	return p.ledger.Snapshot()
}

// TotalBalance returns the pooled amount.
func (p *Pool) TotalBalance() *big.Int {
	return p.ledger.TotalBalance()
}

func (p *Pool) admit(ctx context.Context, caller common.Address, amount *big.Int) error {
	minimum, err := p.gate.MinimumDeposit(ctx, p.threshold, p.scale)
	if err != nil {
		p.logger.Warn("deposit rejected", zap.String("caller", caller.Hex()), zap.Error(err))
		return fmt.Errorf("entrance fee: %w", err)
	}
	if amount.Cmp(minimum) < 0 {
		p.logger.Info("deposit below entrance fee",
			zap.String("caller", caller.Hex()),
			zap.String("required", minimum.String()),
			zap.String("supplied", amount.String()),
		)
		return &InsufficientAmountError{Required: minimum, Supplied: new(big.Int).Set(amount)}
	}
	return nil
}

// update runs fn in a store transaction. A commit whose receipts are still
// waiting for the journal counts as done.
func (p *Pool) update(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := p.store.Update(ctx, fn)
	if errors.Is(err, storage.ErrDeliveryPending) {
		p.logger.Warn("withdrawal receipt committed, delivery pending", zap.Error(err))
		return nil
	}
	return err
}

func (p *Pool) readEntries(ctx context.Context, tx storage.Tx) ([]ledger.Entry, error) {
	current, err := tx.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	return entriesFromModel(current)
}

func (p *Pool) withdrawLocal(ctx context.Context) (*big.Int, error) {
	snapshot := p.ledger.Snapshot()
	total := snapshot.Total()
	if snapshot.Len() == 0 {
		return total, nil
	}

	if total.Sign() > 0 && p.settler != nil {
		receipt := p.receipt(entriesToModel(snapshot), total)
		if err := p.settler.Settle(ctx, receipt); err != nil {
			return nil, fmt.Errorf("settle withdrawal: %w", err)
		}
		p.logger.Info("withdrawal settled", zap.String("receipt", receipt.ID))
	}

	withdrawn := p.ledger.ClearAll()
	p.logWithdraw(withdrawn, snapshot.Len())
	return withdrawn, nil
}

func (p *Pool) logDeposit(caller common.Address, amount, balance *big.Int) {
	p.logger.Info("deposit accepted",
		zap.String("caller", caller.Hex()),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)
}

func (p *Pool) logWithdraw(withdrawn *big.Int, accounts int) {
	p.logger.Info("withdraw complete",
		zap.String("owner", p.owner.Hex()),
		zap.String("amount", withdrawn.String()),
		zap.Int("accounts", accounts),
	)
}

func (p *Pool) receipt(entries []model.BalanceEntry, total *big.Int) model.Withdrawal {
	return model.Withdrawal{
		ID:        uuid.NewString(),
		Owner:     p.owner.Hex(),
		Amount:    total.String(),
		Entries:   entries,
		CreatedAt: p.now().UTC().Format(time.RFC3339Nano),
	}
}

func sumEntries(entries []ledger.Entry) *big.Int {
	total := new(big.Int)
	for _, entry := range entries {
		total.Add(total, entry.Amount)
	}
	return total
}

func entriesToModel(snapshot ledger.Snapshot) []model.BalanceEntry {
	out := make([]model.BalanceEntry, 0, snapshot.Len())
	for account, amount := range snapshot.All() {
		out = append(out, model.BalanceEntry{Account: account.Hex(), Amount: amount.String()})
	}
	return out
}

func entriesFromModel(entries []model.BalanceEntry) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, 0, len(entries))
	for _, entry := range entries {
		if !common.IsHexAddress(entry.Account) {
			return nil, fmt.Errorf("invalid persisted account: %s", entry.Account)
		}
		amount, err := model.ParseAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("persisted balance of %s: %w", entry.Account, err)
		}
		out = append(out, ledger.Entry{Account: common.HexToAddress(entry.Account), Amount: amount})
	}
	return out, nil
}
