package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"simpleBank/internal/model"
)

const lockRetryDelay = 10 * time.Millisecond

// FileStore keeps the pool state in a single JSON file. Mutations hold an
// flock on a sibling .lock file, so processes sharing the file are serialized.
// Withdrawal receipts are committed into the state first and then appended
// to the journal.
type FileStore struct {
	path    string
	journal *JSONLJournal
	mu      sync.Mutex
}

func NewFileStore(path string, journal *JSONLJournal) *FileStore {
	return &FileStore{path: path, journal: journal}
}

// LoadState reads the pool state. ok is false when nothing was persisted yet.
func (s *FileStore) LoadState(ctx context.Context) (model.PoolState, bool, error) {
	return s.load()
}

// InitState records the owner of a new pool.
func (s *FileStore) InitState(ctx context.Context, owner string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	state, ok, err := s.load()
	if err != nil {
		return err
	}
	if ok {
		if !strings.EqualFold(state.Owner, owner) {
			return fmt.Errorf("pool owner already set to %s", state.Owner)
		}
		return nil
	}
	return s.save(model.PoolState{Owner: owner, Entries: []model.BalanceEntry{}})
}

// Update runs fn against the latest persisted state under the store lock and
// saves the result if fn succeeds.
func (s *FileStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	state, ok, err := s.load()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	// Receipts left by an earlier commit go out first; a failure here keeps
	// them pending and does not block this update.
	deliverErr := s.deliver(ctx, &state)

	tx := &fileTx{state: state, journal: s.journal}
	tx.state.Entries = append([]model.BalanceEntry(nil), state.Entries...)
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		if err := s.save(tx.state); err != nil {
			return err
		}
		deliverErr = s.deliver(ctx, &tx.state)
	}
	if deliverErr != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryPending, deliverErr)
	}
	return nil
}

// deliver appends pending receipts to the journal and drops them from the
// state. Receipts already in the journal are not written twice.
func (s *FileStore) deliver(ctx context.Context, state *model.PoolState) error {
	if len(state.Pending) == 0 {
		return nil
	}
	if s.journal == nil {
		return fmt.Errorf("no withdrawal journal configured")
	}
	for _, w := range state.Pending {
		ok, err := s.journal.Contains(w.ID)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := s.journal.Settle(ctx, w); err != nil {
			return err
		}
	}
	state.Pending = nil
	return s.save(*state)
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if err := ensureDir(s.path); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("lock state: %w", err)
	}
	return func() {
		_ = fl.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) load() (model.PoolState, bool, error) {
	if s.path == "" {
		return model.PoolState{}, false, fmt.Errorf("state path is required")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, fmt.Errorf("read state: %w", err)
	}

	var state model.PoolState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.PoolState{}, false, fmt.Errorf("parse state: %w", err)
	}
	if state.Entries == nil {
		state.Entries = []model.BalanceEntry{}
	}
	return state, true, nil
}

func (s *FileStore) save(state model.PoolState) error {
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

type fileTx struct {
	state   model.PoolState
	journal *JSONLJournal
	dirty   bool
}

func (tx *fileTx) Entries(ctx context.Context) ([]model.BalanceEntry, error) {
	return append([]model.BalanceEntry{}, tx.state.Entries...), nil
}

func (tx *fileTx) Credit(ctx context.Context, entry model.BalanceEntry) (model.BalanceEntry, error) {
	amount, err := model.ParseAmount(entry.Amount)
	if err != nil {
		return model.BalanceEntry{}, err
	}
	for i := range tx.state.Entries {
		current := &tx.state.Entries[i]
		if !strings.EqualFold(current.Account, entry.Account) {
			continue
		}
		balance, err := model.ParseAmount(current.Amount)
		if err != nil {
			return model.BalanceEntry{}, fmt.Errorf("balance of %s: %w", current.Account, err)
		}
		current.Amount = new(big.Int).Add(balance, amount).String()
		tx.dirty = true
		return *current, nil
	}
	added := model.BalanceEntry{Account: entry.Account, Amount: amount.String()}
	tx.state.Entries = append(tx.state.Entries, added)
	tx.dirty = true
	return added, nil
}

func (tx *fileTx) Clear(ctx context.Context) ([]model.BalanceEntry, error) {
	removed := tx.state.Entries
	if len(removed) == 0 {
		return []model.BalanceEntry{}, nil
	}
	tx.state.Entries = []model.BalanceEntry{}
	tx.dirty = true
	return removed, nil
}

func (tx *fileTx) Settle(ctx context.Context, w model.Withdrawal) error {
	if tx.journal == nil {
		return fmt.Errorf("no withdrawal journal configured")
	}
	tx.state.Pending = append(tx.state.Pending, w)
	tx.dirty = true
	return nil
}
