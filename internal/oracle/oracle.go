// Package oracle supplies the live exchange rate of the native asset against
// the reference currency.
package oracle

//go:generate mockgen -destination=mocks/mock_oracle.go -package=mocks simpleBank/internal/oracle PriceOracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ErrUnavailable reports that no trustworthy rate could be obtained.
var ErrUnavailable = errors.New("price oracle unavailable")

// PriceOracle returns the latest known exchange rate as a positive fixed-point
// integer. Implementations must not serve a cached rate.
type PriceOracle interface {
	CurrentRate(ctx context.Context) (*big.Int, error)
}

// Unavailable wraps err so that errors.Is(result, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return ErrUnavailable
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// CheckRate rejects nil and non-positive rates.
func CheckRate(rate *big.Int) error {
	if rate == nil {
		return fmt.Errorf("%w: nil rate", ErrUnavailable)
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive rate %s", ErrUnavailable, rate)
	}
	return nil
}
