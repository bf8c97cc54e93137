package pool

import (
	"errors"
	"fmt"
	"math/big"

	"simpleBank/internal/ledger"
	"simpleBank/internal/oracle"
)

var (
	ErrZeroAmount         = errors.New("deposit amount is zero")
	ErrInsufficientAmount = errors.New("deposit below entrance fee")
	ErrNotOwner           = errors.New("caller is not the pool owner")
	ErrOwnerMismatch      = errors.New("configured owner differs from persisted owner")
	ErrNotDeployed        = errors.New("pool not deployed")
	ErrInvalidAmount      = ledger.ErrInvalidAmount
	ErrOracleUnavailable  = oracle.ErrUnavailable
)

// InsufficientAmountError reports a deposit below the live entrance fee.
type InsufficientAmountError struct {
	Required *big.Int
	Supplied *big.Int
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("insufficient amount: required %s, supplied %s", e.Required, e.Supplied)
}

func (e *InsufficientAmountError) Unwrap() error {
	return ErrInsufficientAmount
}
