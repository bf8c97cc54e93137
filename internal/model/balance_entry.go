package model

import (
	"fmt"
	"math/big"
)

// BalanceEntry is the storage form of one ledger entry. Amounts are decimal
// strings in the smallest native unit.
type BalanceEntry struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}
