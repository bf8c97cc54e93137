package oracle

import (
	"context"
	"math/big"
	"sync"
)

// FixedRateOracle serves a rate set by the caller. It stands in for the mock
// aggregator used on local networks and in tests.
type FixedRateOracle struct {
	mu   sync.RWMutex
	rate *big.Int
	err  error
}

func NewFixedRateOracle(rate *big.Int) *FixedRateOracle {
	o := &FixedRateOracle{}
	o.SetRate(rate)
	return o
}

// SetRate replaces the served rate, like updateAnswer on a mock feed.
func (o *FixedRateOracle) SetRate(rate *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rate == nil {
		o.rate = nil
		return
	}
	o.rate = new(big.Int).Set(rate)
}

// SetError makes every following call fail with err until cleared with nil.
func (o *FixedRateOracle) SetError(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *FixedRateOracle) CurrentRate(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(err)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.err != nil {
		return nil, Unavailable(o.err)
	}
	if err := CheckRate(o.rate); err != nil {
		return nil, err
	}
	return new(big.Int).Set(o.rate), nil
}
