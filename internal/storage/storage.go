// Package storage persists pool state and settlement receipts on the local
// filesystem.
package storage

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks simpleBank/internal/storage Tx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"simpleBank/internal/model"
)

var (
	ErrNotInitialized = errors.New("pool state not initialized")
	// ErrDeliveryPending is returned by Update after a successful commit
	// whose withdrawal receipts could not reach the journal yet. They stay
	// in the state and are delivered on a later Update.
	ErrDeliveryPending = errors.New("withdrawal receipt delivery pending")
)

// Tx is one exclusive store transaction. Other processes sharing the store
// see its changes only if the enclosing Update returns nil.
type Tx interface {
	// Entries returns the balances in first-deposit order.
	Entries(ctx context.Context) ([]model.BalanceEntry, error)
	// Credit adds entry.Amount to the account and returns its new balance.
	Credit(ctx context.Context, entry model.BalanceEntry) (model.BalanceEntry, error)
	// Clear removes every entry and returns what was removed.
	Clear(ctx context.Context) ([]model.BalanceEntry, error)
	// Settle records a withdrawal receipt in the same commit.
	Settle(ctx context.Context, w model.Withdrawal) error
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
