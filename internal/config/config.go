package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	OracleLive  = "live"
	OracleFixed = "fixed"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	Oracle           string
	Feed             string
	FixedRate        string
	RateDecimals     uint8
	MaxAge           time.Duration
	OracleTimeout    time.Duration
	Threshold        string
	Scale            uint8
	CurrencyDecimals uint8
	Owner            string
	StateFile        string
	PGDSN            string
	Journal          string
	MaxRetries       int
	RetryBackoff     time.Duration
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIMPLEBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("oracle", OracleLive)
	v.SetDefault("rate-decimals", 18)
	v.SetDefault("max-age", time.Duration(0))
	v.SetDefault("oracle-timeout", 5*time.Second)
	v.SetDefault("threshold", "50000000000000000000")
	v.SetDefault("scale", 18)
	v.SetDefault("currency-decimals", 18)
	v.SetDefault("state-file", "./data/pool.json")
	v.SetDefault("journal", "./data/withdrawals.jsonl")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var decimals [3]uint8
	for i, key := range []string{"rate-decimals", "scale", "currency-decimals"} {
		n, err := getUint8(v, key)
		if err != nil {
			return Config{}, err
		}
		decimals[i] = n
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		Oracle:           strings.ToLower(strings.TrimSpace(v.GetString("oracle"))),
		Feed:             v.GetString("feed"),
		FixedRate:        v.GetString("fixed-rate"),
		RateDecimals:     decimals[0],
		MaxAge:           v.GetDuration("max-age"),
		OracleTimeout:    v.GetDuration("oracle-timeout"),
		Threshold:        v.GetString("threshold"),
		Scale:            decimals[1],
		CurrencyDecimals: decimals[2],
		Owner:            v.GetString("owner"),
		StateFile:        v.GetString("state-file"),
		PGDSN:            v.GetString("pg-dsn"),
		Journal:          v.GetString("journal"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// getUint8 reads a decimal count, rejecting values a uint8 cannot hold.
func getUint8(v *viper.Viper, key string) (uint8, error) {
	const max = 255
	n := v.GetInt64(key)
	if n < 0 || n > max {
		return 0, fmt.Errorf("%s must be between 0 and %d, got %d", key, max, n)
	}
	return uint8(n), nil
}

// Validate checks the oracle and admission settings shared by every command.
func (c Config) Validate() error {
	switch c.Oracle {
	case OracleLive:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required for the live oracle")
		}
		if !common.IsHexAddress(c.Feed) {
			return fmt.Errorf("invalid feed address: %q", c.Feed)
		}
	case OracleFixed:
		if _, err := c.FixedRateValue(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown oracle %q (want %s or %s)", c.Oracle, OracleLive, OracleFixed)
	}
	if _, err := c.ThresholdValue(); err != nil {
		return err
	}
	if c.Owner != "" && !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("invalid owner address: %q", c.Owner)
	}
	return nil
}

// ThresholdValue parses the entrance threshold in currency minor units.
func (c Config) ThresholdValue() (*big.Int, error) {
	value, err := ParseInteger(c.Threshold)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("threshold must be positive")
	}
	return value, nil
}

// FixedRateValue parses the rate served by the fixed oracle.
func (c Config) FixedRateValue() (*big.Int, error) {
	value, err := ParseInteger(c.FixedRate)
	if err != nil {
		return nil, fmt.Errorf("fixed rate: %w", err)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("fixed rate must be positive")
	}
	return value, nil
}

// OwnerAddress returns the configured owner, the zero address if unset.
func (c Config) OwnerAddress() common.Address {
	if c.Owner == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Owner)
}

// ParseInteger parses a decimal or 0x-prefixed 256-bit integer.
func ParseInteger(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("value is required")
	}
	value, ok := math.ParseBig256(input)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %s", input)
	}
	return value, nil
}

// ParseAddress validates and converts a hex account address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
