package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"simpleBank/internal/config"
	"simpleBank/internal/gate"
)

func runDeposit(cmd *cobra.Command, _ []string) error {
	from, _ := cmd.Flags().GetString("from")
	caller, err := config.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}

	var amount *big.Int
	if raw, _ := cmd.Flags().GetString("amount"); raw != "" {
		amount, err = config.ParseInteger(raw)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
	}
	multiple, _ := cmd.Flags().GetUint64("fee-multiple")
	if amount == nil && multiple == 0 {
		return fmt.Errorf("fee-multiple must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.openPool(ctx, false)
	if err != nil {
		return err
	}

	err = withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, e.logger, func(ctx context.Context) error {
		value := amount
		if value == nil {
			fee, err := p.EntranceFee(ctx)
			if err != nil {
				return err
			}
			value = fee.Mul(fee, new(big.Int).SetUint64(multiple))
		}
		if err := p.Deposit(ctx, caller, value); err != nil {
			return err
		}
		amount = value
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deposited %s from %s, pool total %s\n",
		gate.FormatUnits(amount, e.cfg.Scale), caller.Hex(), gate.FormatUnits(p.TotalBalance(), e.cfg.Scale))
	return nil
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	from, _ := cmd.Flags().GetString("from")
	caller, err := config.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.openPool(ctx, false)
	if err != nil {
		return err
	}

	withdrawn, err := p.Withdraw(ctx, caller)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "withdrew %s to %s\n", gate.FormatUnits(withdrawn, e.cfg.Scale), p.Owner().Hex())
	return nil
}
