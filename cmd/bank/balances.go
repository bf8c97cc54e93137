package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"simpleBank/internal/gate"
)

func runBalances(cmd *cobra.Command, _ []string) error {
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
	snapshot := p.BalancesSnapshot()

	// Values are best effort; balances print even when the oracle is down.
	rate, err := e.gate.Rate(ctx)
	if err != nil {
		e.logger.Warn("rate unavailable, printing balances without value", zap.Error(err))
		rate = nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tBALANCE\tVALUE")
	for account, amount := range snapshot.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", account.Hex(), gate.FormatUnits(amount, e.cfg.Scale), formatValue(amount, rate, e.cfg.Scale, e.cfg.CurrencyDecimals))
	}
	fmt.Fprintf(w, "TOTAL\t%s\t%s\n", gate.FormatUnits(snapshot.Total(), e.cfg.Scale), formatValue(snapshot.Total(), rate, e.cfg.Scale, e.cfg.CurrencyDecimals))
	return w.Flush()
}

func formatValue(amount, rate *big.Int, scale, currencyDecimals uint8) string {
	if rate == nil {
		return "-"
	}
	return gate.FormatRat(gate.ValueOf(amount, rate, scale), currencyDecimals)
}
