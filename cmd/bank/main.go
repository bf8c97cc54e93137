package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bank",
		Short:        "SimpleBank fund pool",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "EVM RPC URL")
	flags.String("oracle", "live", "price source (live, fixed)")
	flags.String("feed", "", "AggregatorV3 price feed address")
	flags.String("fixed-rate", "", "rate served by the fixed oracle, currency minor units per native unit")
	flags.Uint8("rate-decimals", 18, "decimals of the rate")
	flags.Duration("max-age", 0, "reject feed rounds older than this, 0 disables")
	flags.Duration("oracle-timeout", 5*time.Second, "bound on a single rate read")
	flags.String("threshold", "50000000000000000000", "entrance threshold in currency minor units")
	flags.Uint8("scale", 18, "decimals of the native asset")
	flags.Uint8("currency-decimals", 18, "decimals used when printing currency values")
	flags.String("owner", "", "pool owner address")
	flags.String("state-file", "./data/pool.json", "pool state file")
	flags.String("pg-dsn", "", "Postgres DSN, replaces the state and journal files when set")
	flags.String("journal", "./data/withdrawals.jsonl", "withdrawal journal JSONL path")
	flags.Int("max-retries", 3, "retry attempts when the oracle is unavailable")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create the pool for the configured owner",
		RunE:  runDeploy,
	}
	root.AddCommand(deployCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Show the current exchange rate",
		RunE:  runPrice,
	}
	root.AddCommand(priceCmd)

	feeCmd := &cobra.Command{
		Use:   "fee",
		Short: "Show the current entrance fee",
		RunE:  runFee,
	}
	root.AddCommand(feeCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit into the pool",
		RunE:  runDeposit,
	}
	depositCmd.Flags().String("from", "", "depositor address")
	depositCmd.Flags().String("amount", "", "amount in native minor units (decimal or 0x hex)")
	depositCmd.Flags().Uint64("fee-multiple", 1, "deposit this multiple of the entrance fee when --amount is unset")
	root.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Sweep the pool to the owner",
		RunE:  runWithdraw,
	}
	withdrawCmd.Flags().String("from", "", "caller address")
	root.AddCommand(withdrawCmd)

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "List depositors and balances",
		RunE:  runBalances,
	}
	root.AddCommand(balancesCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
