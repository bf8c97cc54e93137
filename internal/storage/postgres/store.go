package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"simpleBank/internal/model"
	"simpleBank/internal/storage"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pool_state (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	owner      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	position   BIGSERIAL,
	account    TEXT PRIMARY KEY,
	amount     NUMERIC(78, 0) NOT NULL CHECK (amount >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS withdrawals (
	id         UUID PRIMARY KEY,
	owner      TEXT NOT NULL,
	amount     NUMERIC(78, 0) NOT NULL,
	entries    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for the pool ledger and settlement
// receipts. A sweep and its receipt commit in one transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadState returns the owner and ledger entries in first-deposit order.
func (s *Store) LoadState(ctx context.Context) (model.PoolState, bool, error) {
	var state model.PoolState
	row := s.pool.QueryRow(ctx, `SELECT owner, to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM pool_state WHERE id = 1`)
	if err := row.Scan(&state.Owner, &state.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, err
	}

	rows, err := s.pool.Query(ctx, `SELECT account, amount::text FROM ledger_entries ORDER BY position`)
	if err != nil {
		return model.PoolState{}, false, fmt.Errorf("query ledger entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return model.PoolState{}, false, fmt.Errorf("scan ledger entries: %w", err)
	}
	state.Entries = entries
	return state, true, nil
}

// InitState records the pool owner. It fails if a different owner is already recorded.
func (s *Store) InitState(ctx context.Context, owner string) error {
	if owner == "" {
		return fmt.Errorf("owner required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pool_state (id, owner, created_at, updated_at)
			VALUES (1, $1, now(), now())
			ON CONFLICT (id) DO NOTHING
		`, owner); err != nil {
			return err
		}
		var existing string
		if err := tx.QueryRow(ctx, `SELECT owner FROM pool_state WHERE id = 1`).Scan(&existing); err != nil {
			return err
		}
		if !strings.EqualFold(existing, owner) {
			return fmt.Errorf("pool owner already set to %s", existing)
		}
		return nil
	})
}

// Update runs fn in one transaction holding the pool_state row lock, which
// serializes every process sharing the database.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT owner FROM pool_state WHERE id = 1 FOR UPDATE`).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrNotInitialized
			}
			return fmt.Errorf("lock pool state: %w", err)
		}
		if err := fn(&storeTx{tx: tx}); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE pool_state SET updated_at = now() WHERE id = 1`)
		return err
	})
}

// Withdrawals returns settlement receipts, oldest first.
func (s *Store) Withdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, owner, amount::text, entries::text,
			to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM withdrawals
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Withdrawal, error) {
		var w model.Withdrawal
		var entries string
		if err := row.Scan(&w.ID, &w.Owner, &w.Amount, &entries, &w.CreatedAt); err != nil {
			return w, err
		}
		if err := json.Unmarshal([]byte(entries), &w.Entries); err != nil {
			return w, fmt.Errorf("parse entries: %w", err)
		}
		return w, nil
	})
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) Entries(ctx context.Context) ([]model.BalanceEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT account, amount::text FROM ledger_entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

// Credit adds to the stored balance. New accounts are appended to the deposit
// order; existing ones keep their position.
func (t *storeTx) Credit(ctx context.Context, entry model.BalanceEntry) (model.BalanceEntry, error) {
	out := model.BalanceEntry{Account: entry.Account}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (account, amount, updated_at)
		VALUES ($1, $2::text::numeric, now())
		ON CONFLICT (account)
		DO UPDATE SET amount = ledger_entries.amount + EXCLUDED.amount, updated_at = now()
		RETURNING amount::text
	`, entry.Account, entry.Amount).Scan(&out.Amount)
	if err != nil {
		return model.BalanceEntry{}, fmt.Errorf("credit %s: %w", entry.Account, err)
	}
	return out, nil
}

func (t *storeTx) Clear(ctx context.Context) ([]model.BalanceEntry, error) {
	rows, err := t.tx.Query(ctx, `
		WITH removed AS (
			DELETE FROM ledger_entries RETURNING position, account, amount
		)
		SELECT account, amount::text FROM removed ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("clear ledger entries: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

// Settle records the receipt for the payout process in the sweep's transaction.
func (t *storeTx) Settle(ctx context.Context, w model.Withdrawal) error {
	entries, err := json.Marshal(w.Entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO withdrawals (id, owner, amount, entries, created_at)
		VALUES ($1::text::uuid, $2, $3::text::numeric, $4::jsonb, $5::text::timestamptz)
	`, w.ID, w.Owner, w.Amount, string(entries), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (model.BalanceEntry, error) {
	var entry model.BalanceEntry
	err := row.Scan(&entry.Account, &entry.Amount)
	return entry, err
}
