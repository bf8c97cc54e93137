package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simpleBank/internal/chain"
	"simpleBank/internal/config"
	"simpleBank/internal/gate"
	"simpleBank/internal/oracle"
	"simpleBank/internal/pool"
	"simpleBank/internal/storage"
	"simpleBank/internal/storage/postgres"
)

// env carries the collaborators shared by every command.
type env struct {
	cfg       config.Config
	logger    *zap.Logger
	threshold *big.Int
	chain     *chain.Client
	live      *oracle.LiveOracle
	gate      *gate.Gate
	store     pool.Store

	closers []func()
}

func newEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threshold, err := cfg.ThresholdValue()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, threshold: threshold}
	e.closers = append(e.closers, func() { _ = logger.Sync() })

	priceOracle, err := e.newOracle(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.gate, err = gate.New(priceOracle, cfg.OracleTimeout)
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func (e *env) newOracle(ctx context.Context) (oracle.PriceOracle, error) {
	if e.cfg.Oracle == config.OracleFixed {
		rate, err := e.cfg.FixedRateValue()
		if err != nil {
			return nil, err
		}
		return oracle.NewFixedRateOracle(rate), nil
	}

	chainClient, err := chain.NewClient(ctx, e.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	e.chain = chainClient
	e.closers = append(e.closers, chainClient.Close)

	live, err := oracle.NewLiveOracle(oracle.LiveConfig{
		Feed:         common.HexToAddress(e.cfg.Feed),
		RateDecimals: e.cfg.RateDecimals,
		MaxAge:       e.cfg.MaxAge,
	}, chainClient, e.logger)
	if err != nil {
		return nil, err
	}
	e.live = live
	return live, nil
}

// openStorage selects Postgres when a DSN is configured, local files otherwise.
func (e *env) openStorage(ctx context.Context) error {
	if e.cfg.PGDSN == "" {
		e.store = storage.NewFileStore(e.cfg.StateFile, storage.NewJSONLJournal(e.cfg.Journal))
		e.logger.Debug("file storage",
			zap.String("state_file", e.cfg.StateFile),
			zap.String("journal", e.cfg.Journal),
		)
		return nil
	}

	store, err := postgres.NewStore(ctx, e.cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	e.closers = append(e.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	e.store = store
	e.logger.Debug("postgres storage", zap.String("pg_dsn", redactDSN(e.cfg.PGDSN)))
	return nil
}

// openPool loads the persisted pool. Only create may initialize an empty
// store, and it needs the configured owner to do so.
func (e *env) openPool(ctx context.Context, create bool) (*pool.Pool, error) {
	if e.store == nil {
		if err := e.openStorage(ctx); err != nil {
			return nil, err
		}
	}
	p, err := pool.Open(ctx, pool.Config{
		Owner:     e.cfg.OwnerAddress(),
		Gate:      e.gate,
		Threshold: e.threshold,
		Scale:     e.cfg.Scale,
		Store:     e.store,
		Logger:    e.logger,
		Create:    create,
	})
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return p, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
