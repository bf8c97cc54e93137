package pool_test

import (
	"context"

	"github.com/golang/mock/gomock"

	"simpleBank/internal/oracle/mocks"
	"simpleBank/internal/storage"
)

func oracleMock(ctl *gomock.Controller) *mocks.MockPriceOracle {
	return mocks.NewMockPriceOracle(ctl)
}

// runIn makes a mocked Store.Update run fn against tx and return its error.
func runIn(tx storage.Tx) func(context.Context, func(storage.Tx) error) error {
	return func(_ context.Context, fn func(storage.Tx) error) error {
		return fn(tx)
	}
}
