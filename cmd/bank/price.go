package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"simpleBank/internal/gate"
)

func runPrice(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if e.live != nil {
		description, err := e.live.Description(ctx)
		if err != nil {
			return fmt.Errorf("feed description: %w", err)
		}
		round, err := e.live.LatestRoundData(ctx)
		if err != nil {
			return fmt.Errorf("latest round: %w", err)
		}
		fmt.Fprintf(out, "feed: %s (%s)\n", e.cfg.Feed, description)
		fmt.Fprintf(out, "round: %s updated %s\n",
			round.RoundID, time.Unix(round.UpdatedAt.Int64(), 0).UTC().Format(time.RFC3339))
	}

	var rate *big.Int
	err = withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, e.logger, func(ctx context.Context) error {
		var err error
		rate, err = e.gate.Rate(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rate: %s (%s per native unit)\n", rate, gate.FormatUnits(rate, e.cfg.RateDecimals))
	return nil
}

func runFee(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	var quote gate.Quote
	err = withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, e.logger, func(ctx context.Context) error {
		var err error
		quote, err = e.gate.Quote(ctx, e.threshold, e.cfg.Scale)
		return err
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entrance fee: %s\n", quote.Minimum)
	fmt.Fprintf(out, "native: %s\n", gate.FormatUnits(quote.Minimum, e.cfg.Scale))
	fmt.Fprintf(out, "value: %s\n", gate.FormatRat(quote.FeeValue(), e.cfg.CurrencyDecimals))
	return nil
}
