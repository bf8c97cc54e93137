package pool_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"simpleBank/internal/gate"
	"simpleBank/internal/ledger"
	"simpleBank/internal/model"
	"simpleBank/internal/oracle"
	"simpleBank/internal/pool"
	"simpleBank/internal/pool/mocks"
	"simpleBank/internal/storage"
	storemocks "simpleBank/internal/storage/mocks"
)

var (
	owner = common.HexToAddress("0x9999999999999999999999999999999999999999")
	accA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	accB  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestPool(t *testing.T, o oracle.PriceOracle, mutate func(*pool.Config)) *pool.Pool {
	t.Helper()
	g, err := gate.New(o, time.Second)
	require.NoError(t, err)

	cfg := pool.Config{
		Owner:     owner,
		Gate:      g,
		Threshold: big.NewInt(50),
		Scale:     2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := pool.New(cfg)
	require.NoError(t, err)
	return p
}

func snapshotOf(p *pool.Pool) []ledger.Entry {
	return p.BalancesSnapshot().Entries()
}

func TestDepositScenario(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), nil)
	ctx := context.Background()

	fee, err := p.EntranceFee(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(25), fee.Int64())

	err = p.Deposit(ctx, accA, big.NewInt(24))
	var insufficient *pool.InsufficientAmountError
	require.ErrorAs(t, err, &insufficient)
	require.ErrorIs(t, err, pool.ErrInsufficientAmount)
	require.Equal(t, int64(25), insufficient.Required.Int64())
	require.Equal(t, int64(24), insufficient.Supplied.Int64())
	require.Zero(t, p.TotalBalance().Sign())
	require.Empty(t, snapshotOf(p))

	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))
	require.Equal(t, int64(25), p.TotalBalance().Int64())
	entries := snapshotOf(p)
	require.Len(t, entries, 1)
	require.Equal(t, accA, entries[0].Account)
	require.Equal(t, int64(25), entries[0].Amount.Int64())
}

func TestDepositAndWithdrawScenario(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), nil)
	ctx := context.Background()

	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))
	require.NoError(t, p.Deposit(ctx, accB, big.NewInt(30)))
	require.Equal(t, int64(55), p.TotalBalance().Int64())

	entries := snapshotOf(p)
	require.Len(t, entries, 2)
	require.Equal(t, accA, entries[0].Account)
	require.Equal(t, int64(25), entries[0].Amount.Int64())
	require.Equal(t, accB, entries[1].Account)
	require.Equal(t, int64(30), entries[1].Amount.Int64())

	withdrawn, err := p.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(55), withdrawn.Int64())
	require.Zero(t, p.TotalBalance().Sign())
	require.Empty(t, snapshotOf(p))

	withdrawn, err = p.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Sign())
}

func TestDepositZeroAmount(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	m := oracleMock(ctl)
	m.EXPECT().CurrentRate(gomock.Any()).Times(0)

	p := newTestPool(t, m, nil)
	require.ErrorIs(t, p.Deposit(context.Background(), accA, big.NewInt(0)), pool.ErrZeroAmount)
	require.ErrorIs(t, p.Deposit(context.Background(), accA, nil), pool.ErrZeroAmount)
	require.ErrorIs(t, p.Deposit(context.Background(), accA, big.NewInt(-3)), pool.ErrInvalidAmount)
	require.Empty(t, snapshotOf(p))
}

func TestNonOwnerCannotWithdraw(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), nil)
	ctx := context.Background()

	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))
	require.NoError(t, p.Deposit(ctx, accB, big.NewInt(30)))
	before := snapshotOf(p)

	for _, caller := range []common.Address{accA, accB, {}} {
		withdrawn, err := p.Withdraw(ctx, caller)
		require.ErrorIs(t, err, pool.ErrNotOwner)
		require.Nil(t, withdrawn)
	}
	require.Equal(t, before, snapshotOf(p))
	require.Equal(t, int64(55), p.TotalBalance().Int64())
}

func TestOracleOutage(t *testing.T) {
	o := oracle.NewFixedRateOracle(big.NewInt(200))
	p := newTestPool(t, o, nil)
	ctx := context.Background()

	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))
	o.SetError(errors.New("feed offline"))

	require.ErrorIs(t, p.Deposit(ctx, accB, big.NewInt(1000)), pool.ErrOracleUnavailable)
	_, err := p.EntranceFee(ctx)
	require.ErrorIs(t, err, pool.ErrOracleUnavailable)
	_, err = p.EntranceFeeQuote(ctx)
	require.ErrorIs(t, err, pool.ErrOracleUnavailable)
	require.Equal(t, int64(25), p.TotalBalance().Int64())

	withdrawn, err := p.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(25), withdrawn.Int64())
}

func TestDegenerateRateRejected(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(0)), nil)
	require.ErrorIs(t, p.Deposit(context.Background(), accA, big.NewInt(25)), pool.ErrOracleUnavailable)
	require.Empty(t, snapshotOf(p))
}

func TestEntranceFeeFollowsRate(t *testing.T) {
	o := oracle.NewFixedRateOracle(big.NewInt(200))
	p := newTestPool(t, o, nil)
	ctx := context.Background()

	fee, err := p.EntranceFee(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(25), fee.Int64())

	// A falling price raises the fee; a deposit that passed before now fails.
	o.SetRate(big.NewInt(100))
	fee, err = p.EntranceFee(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(50), fee.Int64())

	var insufficient *pool.InsufficientAmountError
	require.ErrorAs(t, p.Deposit(ctx, accA, big.NewInt(25)), &insufficient)
	require.Equal(t, int64(50), insufficient.Required.Int64())

	quote, err := p.EntranceFeeQuote(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(50), quote.Minimum.Int64())
	require.Equal(t, int64(100), quote.Rate.Int64())
}

func TestSnapshotReadsAreIdempotent(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), nil)
	ctx := context.Background()
	require.NoError(t, p.Deposit(ctx, accB, big.NewInt(40)))
	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(26)))
	require.NoError(t, p.Deposit(ctx, accB, big.NewInt(25)))

	require.Equal(t, snapshotOf(p), snapshotOf(p))
}

func TestWithdrawSettlesReceipt(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	settler := mocks.NewMockSettler(ctl)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Settler = settler
		cfg.Now = func() time.Time { return now }
	})
	ctx := context.Background()
	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))
	require.NoError(t, p.Deposit(ctx, accB, big.NewInt(30)))

	var got model.Withdrawal
	settler.EXPECT().Settle(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, w model.Withdrawal) error {
		got = w
		return nil
	})

	withdrawn, err := p.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(55), withdrawn.Int64())

	require.NotEmpty(t, got.ID)
	require.Equal(t, owner.Hex(), got.Owner)
	require.Equal(t, "55", got.Amount)
	require.Equal(t, "2024-01-01T00:00:00Z", got.CreatedAt)
	require.Equal(t, []model.BalanceEntry{
		{Account: accA.Hex(), Amount: "25"},
		{Account: accB.Hex(), Amount: "30"},
	}, got.Entries)

	// Nothing to settle on an empty pool.
	withdrawn, err = p.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Sign())
}

func TestWithdrawSettlementFailureKeepsState(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})
	ctx := context.Background()
	entryA := model.BalanceEntry{Account: accA.Hex(), Amount: "25"}

	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(runIn(tx)).Times(2)
	tx.EXPECT().Credit(gomock.Any(), entryA).Return(entryA, nil)
	tx.EXPECT().Entries(gomock.Any()).Return([]model.BalanceEntry{entryA}, nil)
	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))

	gomock.InOrder(
		tx.EXPECT().Clear(gomock.Any()).Return([]model.BalanceEntry{entryA}, nil),
		tx.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(errors.New("payout queue full")),
	)

	_, err := p.Withdraw(ctx, owner)
	require.ErrorContains(t, err, "payout queue full")
	require.Equal(t, int64(25), p.TotalBalance().Int64())
	require.Len(t, snapshotOf(p), 1)
}

func TestLocalSettlementFailureKeepsState(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	settler := mocks.NewMockSettler(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Settler = settler
	})
	ctx := context.Background()
	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))

	settler.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(errors.New("payout queue full"))
	_, err := p.Withdraw(ctx, owner)
	require.ErrorContains(t, err, "payout queue full")
	require.Equal(t, int64(25), p.TotalBalance().Int64())
}

func TestDepositPersistFailureKeepsLedger(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})
	ctx := context.Background()
	entryA := model.BalanceEntry{Account: accA.Hex(), Amount: "25"}

	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(runIn(tx)).Times(2)
	tx.EXPECT().Credit(gomock.Any(), entryA).Return(entryA, nil)
	tx.EXPECT().Entries(gomock.Any()).Return([]model.BalanceEntry{entryA}, nil)
	require.NoError(t, p.Deposit(ctx, accA, big.NewInt(25)))

	tx.EXPECT().Credit(gomock.Any(), model.BalanceEntry{Account: accA.Hex(), Amount: "30"}).Return(model.BalanceEntry{}, errors.New("disk full"))
	require.ErrorContains(t, p.Deposit(ctx, accA, big.NewInt(30)), "disk full")
	require.Equal(t, int64(25), p.TotalBalance().Int64())
}

func TestDepositBelowFeeNeverTouchesStoreBalances(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})
	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(runIn(tx))
	tx.EXPECT().Credit(gomock.Any(), gomock.Any()).Times(0)

	require.ErrorIs(t, p.Deposit(context.Background(), accA, big.NewInt(24)), pool.ErrInsufficientAmount)
	require.Empty(t, snapshotOf(p))
}

func TestDepositRefreshesFromStore(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})

	// Another process already credited B and A.
	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(runIn(tx))
	tx.EXPECT().Credit(gomock.Any(), model.BalanceEntry{Account: accA.Hex(), Amount: "25"}).
		Return(model.BalanceEntry{Account: accA.Hex(), Amount: "55"}, nil)
	tx.EXPECT().Entries(gomock.Any()).Return([]model.BalanceEntry{
		{Account: accB.Hex(), Amount: "40"},
		{Account: accA.Hex(), Amount: "55"},
	}, nil)

	require.NoError(t, p.Deposit(context.Background(), accA, big.NewInt(25)))
	entries := snapshotOf(p)
	require.Len(t, entries, 2)
	require.Equal(t, accB, entries[0].Account)
	require.Equal(t, int64(55), entries[1].Amount.Int64())
	require.Equal(t, int64(95), p.TotalBalance().Int64())
}

func TestWithdrawSweepsPersistedEntries(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})
	removed := []model.BalanceEntry{
		{Account: accA.Hex(), Amount: "25"},
		{Account: accB.Hex(), Amount: "40"},
	}

	var got model.Withdrawal
	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(runIn(tx))
	tx.EXPECT().Clear(gomock.Any()).Return(removed, nil)
	tx.EXPECT().Settle(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, w model.Withdrawal) error {
		got = w
		return nil
	})

	withdrawn, err := p.Withdraw(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(65), withdrawn.Int64())
	require.Equal(t, "65", got.Amount)
	require.Equal(t, removed, got.Entries)
}

func TestWithdrawWithPendingDeliveryCompletes(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	store := mocks.NewMockStore(ctl)
	tx := storemocks.NewMockTx(ctl)

	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), func(cfg *pool.Config) {
		cfg.Store = store
	})
	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn func(storage.Tx) error) error {
		if err := fn(tx); err != nil {
			return err
		}
		return fmt.Errorf("%w: journal offline", storage.ErrDeliveryPending)
	})
	tx.EXPECT().Clear(gomock.Any()).Return([]model.BalanceEntry{{Account: accA.Hex(), Amount: "25"}}, nil)
	tx.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(nil)

	withdrawn, err := p.Withdraw(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(25), withdrawn.Int64())
	require.Empty(t, snapshotOf(p))
}

func openShared(t *testing.T, dir string, create bool) *pool.Pool {
	t.Helper()
	g, err := gate.New(oracle.NewFixedRateOracle(big.NewInt(200)), time.Second)
	require.NoError(t, err)
	cfg := pool.Config{
		Gate:      g,
		Threshold: big.NewInt(50),
		Scale:     2,
		Store:     storage.NewFileStore(filepath.Join(dir, "pool.json"), storage.NewJSONLJournal(filepath.Join(dir, "withdrawals.jsonl"))),
		Create:    create,
	}
	if create {
		cfg.Owner = owner
	}
	p, err := pool.Open(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestPoolsSharingAStoreKeepEveryDeposit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := openShared(t, dir, true)
	b := openShared(t, dir, false)
	c := openShared(t, dir, false)

	require.NoError(t, a.Deposit(ctx, accA, big.NewInt(25)))
	require.NoError(t, b.Deposit(ctx, accA, big.NewInt(30)))
	require.Equal(t, int64(55), b.TotalBalance().Int64())

	d := openShared(t, dir, false)
	e := openShared(t, dir, false)
	require.NoError(t, e.Deposit(ctx, accB, big.NewInt(40)))
	require.Equal(t, int64(55), d.TotalBalance().Int64())

	withdrawn, err := d.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(95), withdrawn.Int64())

	receipts, err := storage.NewJSONLJournal(filepath.Join(dir, "withdrawals.jsonl")).Withdrawals()
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, "95", receipts[0].Amount)
	require.Equal(t, []model.BalanceEntry{
		{Account: accA.Hex(), Amount: "55"},
		{Account: accB.Hex(), Amount: "40"},
	}, receipts[0].Entries)

	require.NoError(t, c.Refresh(ctx))
	require.Zero(t, c.TotalBalance().Sign())

	withdrawn, err = a.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Sign())
}

func TestConcurrentPoolsOnOneStoreConserveFunds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pools := []*pool.Pool{openShared(t, dir, true), openShared(t, dir, false), openShared(t, dir, false)}

	var accepted, withdrawn atomic.Int64
	var eg errgroup.Group
	for i := 0; i < 60; i++ {
		i := i
		p := pools[i%len(pools)]
		eg.Go(func() error {
			amount := int64(25 + i%5)
			if err := p.Deposit(ctx, accA, big.NewInt(amount)); err != nil {
				return err
			}
			accepted.Add(amount)
			return nil
		})
		if i%15 == 0 {
			eg.Go(func() error {
				out, err := p.Withdraw(ctx, owner)
				if err != nil {
					return err
				}
				withdrawn.Add(out.Int64())
				return nil
			})
		}
	}
	require.NoError(t, eg.Wait())

	require.NoError(t, pools[0].Refresh(ctx))
	require.Equal(t, accepted.Load(), withdrawn.Load()+pools[0].TotalBalance().Int64())

	receipts, err := storage.NewJSONLJournal(filepath.Join(dir, "withdrawals.jsonl")).Withdrawals()
	require.NoError(t, err)
	settled := new(big.Int)
	for _, r := range receipts {
		amount, err := model.ParseAmount(r.Amount)
		require.NoError(t, err)
		settled.Add(settled, amount)
	}
	require.Equal(t, withdrawn.Load(), settled.Int64())
}

func TestOpenRestoresPersistedPool(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	newStore := func() pool.Store {
		return storage.NewFileStore(filepath.Join(dir, "pool.json"), storage.NewJSONLJournal(filepath.Join(dir, "withdrawals.jsonl")))
	}
	o := oracle.NewFixedRateOracle(big.NewInt(200))
	g, err := gate.New(o, time.Second)
	require.NoError(t, err)

	cfg := pool.Config{Owner: owner, Gate: g, Threshold: big.NewInt(50), Scale: 2, Store: newStore(), Create: true}
	first, err := pool.Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Deposit(ctx, accB, big.NewInt(30)))
	require.NoError(t, first.Deposit(ctx, accA, big.NewInt(25)))
	require.NoError(t, first.Deposit(ctx, accB, big.NewInt(30)))

	// Reopen without an owner: the persisted owner is adopted.
	cfg.Owner = common.Address{}
	cfg.Create = false
	cfg.Store = newStore()
	second, err := pool.Open(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, owner, second.Owner())
	require.Equal(t, snapshotOf(first), snapshotOf(second))
	require.Equal(t, int64(85), second.TotalBalance().Int64())

	_, err = second.Withdraw(ctx, accA)
	require.ErrorIs(t, err, pool.ErrNotOwner)

	withdrawn, err := second.Withdraw(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(85), withdrawn.Int64())

	third, err := pool.Open(ctx, cfg)
	require.NoError(t, err)
	require.Zero(t, third.TotalBalance().Sign())
}

func TestOpenRejectsOwnerChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	g, err := gate.New(oracle.NewFixedRateOracle(big.NewInt(200)), time.Second)
	require.NoError(t, err)

	cfg := pool.Config{Owner: owner, Gate: g, Threshold: big.NewInt(50), Scale: 2, Store: storage.NewFileStore(path, nil), Create: true}
	_, err = pool.Open(ctx, cfg)
	require.NoError(t, err)

	cfg.Owner = accA
	_, err = pool.Open(ctx, cfg)
	require.ErrorIs(t, err, pool.ErrOwnerMismatch)
}

func TestOpenRequiresOwnerForNewPool(t *testing.T) {
	g, err := gate.New(oracle.NewFixedRateOracle(big.NewInt(200)), time.Second)
	require.NoError(t, err)

	_, err = pool.Open(context.Background(), pool.Config{
		Gate:      g,
		Threshold: big.NewInt(50),
		Store:     storage.NewFileStore(filepath.Join(t.TempDir(), "pool.json"), nil),
		Create:    true,
	})
	require.Error(t, err)
}

func TestOpenDoesNotCreateUnlessAsked(t *testing.T) {
	ctx := context.Background()
	g, err := gate.New(oracle.NewFixedRateOracle(big.NewInt(200)), time.Second)
	require.NoError(t, err)
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "pool.json"), nil)

	_, err = pool.Open(ctx, pool.Config{Owner: owner, Gate: g, Threshold: big.NewInt(50), Store: store})
	require.ErrorIs(t, err, pool.ErrNotDeployed)

	_, ok, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	g, err := gate.New(oracle.NewFixedRateOracle(big.NewInt(200)), time.Second)
	require.NoError(t, err)

	_, err = pool.New(pool.Config{Gate: g, Threshold: big.NewInt(50)})
	require.Error(t, err)
	_, err = pool.New(pool.Config{Owner: owner, Threshold: big.NewInt(50)})
	require.Error(t, err)
	_, err = pool.New(pool.Config{Owner: owner, Gate: g, Threshold: big.NewInt(0)})
	require.Error(t, err)
	_, err = pool.New(pool.Config{
		Owner:     owner,
		Gate:      g,
		Threshold: big.NewInt(50),
		Store:     mocks.NewMockStore(ctl),
		Settler:   mocks.NewMockSettler(ctl),
	})
	require.Error(t, err)
}

func TestConcurrentDepositsAndWithdrawalsConserveFunds(t *testing.T) {
	p := newTestPool(t, oracle.NewFixedRateOracle(big.NewInt(200)), nil)
	ctx := context.Background()

	var accepted, withdrawn atomic.Int64
	var eg errgroup.Group
	for i := 0; i < 200; i++ {
		i := i
		eg.Go(func() error {
			caller := accA
			if i%2 == 0 {
				caller = accB
			}
			amount := int64(25 + i%7)
			if err := p.Deposit(ctx, caller, big.NewInt(amount)); err != nil {
				return err
			}
			accepted.Add(amount)
			return nil
		})
		if i%20 == 0 {
			eg.Go(func() error {
				out, err := p.Withdraw(ctx, owner)
				if err != nil {
					return err
				}
				withdrawn.Add(out.Int64())
				return nil
			})
		}
	}
	require.NoError(t, eg.Wait())

	require.Equal(t, accepted.Load(), withdrawn.Load()+p.TotalBalance().Int64())
}

// countingOracle records how many rate reads overlap.
type countingOracle struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (o *countingOracle) CurrentRate(ctx context.Context) (*big.Int, error) {
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	for {
		seen := o.maxSeen.Load()
		if n <= seen || o.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return big.NewInt(200), nil
}

func TestDepositsAreSerialized(t *testing.T) {
	o := &countingOracle{}
	p := newTestPool(t, o, nil)

	var eg errgroup.Group
	for i := 0; i < 16; i++ {
		eg.Go(func() error {
			return p.Deposit(context.Background(), accA, big.NewInt(25))
		})
	}
	require.NoError(t, eg.Wait())
	require.Equal(t, int32(1), o.maxSeen.Load())
	require.Equal(t, int64(400), p.TotalBalance().Int64())
}
