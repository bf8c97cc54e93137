// Package gate turns a reference-currency threshold into a minimum deposit
// using the oracle's live rate.
package gate

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"simpleBank/internal/oracle"
)

// DefaultTimeout bounds every oracle query when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Gate computes entrance fees. It never caches rates.
type Gate struct {
	oracle  oracle.PriceOracle
	timeout time.Duration
}

// Quote is a minimum deposit together with the rate it was computed from.
type Quote struct {
	Minimum *big.Int
	Rate    *big.Int
	Scale   uint8
}

func New(priceOracle oracle.PriceOracle, timeout time.Duration) (*Gate, error) {
	if priceOracle == nil {
		return nil, fmt.Errorf("price oracle is nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{oracle: priceOracle, timeout: timeout}, nil
}

// MinimumDeposit returns ceil(threshold * 10^scale / rate) for the current rate.
func (g *Gate) MinimumDeposit(ctx context.Context, threshold *big.Int, scale uint8) (*big.Int, error) {
	quote, err := g.Quote(ctx, threshold, scale)
	if err != nil {
		return nil, err
	}
	return quote.Minimum, nil
}

// Quote reads the oracle once and returns the minimum deposit and the rate used.
func (g *Gate) Quote(ctx context.Context, threshold *big.Int, scale uint8) (Quote, error) {
	if threshold == nil || threshold.Sign() < 0 {
		return Quote{}, fmt.Errorf("threshold must be non-negative")
	}

	rate, err := g.Rate(ctx)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Minimum: MinimumFor(threshold, scale, rate),
		Rate:    rate,
		Scale:   scale,
	}, nil
}

// Rate queries the oracle under the gate's timeout.
func (g *Gate) Rate(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rate, err := g.oracle.CurrentRate(ctx)
	if err != nil {
		return nil, oracle.Unavailable(err)
	}
	if err := oracle.CheckRate(rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// MinimumFor computes ceil(threshold * 10^scale / rate) with integer arithmetic.
// rate must be positive.
func MinimumFor(threshold *big.Int, scale uint8, rate *big.Int) *big.Int {
	num := new(big.Int).Mul(threshold, pow10(scale))
	q, r := new(big.Int).QuoRem(num, rate, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ValueOf returns the reference-currency value of amount in currency minor
// units: amount * rate / 10^scale. Used for display only.
func ValueOf(amount *big.Int, rate *big.Int, scale uint8) *big.Rat {
	if amount == nil || rate == nil {
		return new(big.Rat)
	}
	num := new(big.Int).Mul(amount, rate)
	return new(big.Rat).SetFrac(num, pow10(scale))
}

// FeeValue is the entrance fee expressed in currency minor units.
func (q Quote) FeeValue() *big.Rat {
	return ValueOf(q.Minimum, q.Rate, q.Scale)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
