package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simpleBank/internal/gate"
)

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.OwnerAddress() == (common.Address{}) {
		return fmt.Errorf("owner is required")
	}

	if e.chain != nil {
		chainID, err := e.chain.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		feed := common.HexToAddress(e.cfg.Feed)
		ok, err := e.chain.HasCode(ctx, feed)
		if err != nil {
			return fmt.Errorf("check feed: %w", err)
		}
		if !ok {
			return fmt.Errorf("no contract at feed address %s on chain %s", feed.Hex(), chainID)
		}
		e.logger.Info("feed found", zap.String("feed", feed.Hex()), zap.String("chain_id", chainID.String()))
	}

	p, err := e.openPool(ctx, true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "owner: %s\n", p.Owner().Hex())

	var quote gate.Quote
	err = withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, e.logger, func(ctx context.Context) error {
		var err error
		quote, err = p.EntranceFeeQuote(ctx)
		return err
	})
	if err != nil {
		e.logger.Warn("entrance fee unavailable", zap.Error(err))
		return nil
	}
	fmt.Fprintf(out, "entrance fee: %s (%s)\n",
		gate.FormatUnits(quote.Minimum, e.cfg.Scale),
		gate.FormatRat(quote.FeeValue(), e.cfg.CurrencyDecimals),
	)
	return nil
}
