package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultRateDecimals matches the 18-decimal price the pool contract exposes.
const DefaultRateDecimals = 18

// LiveConfig configures a LiveOracle.
type LiveConfig struct {
	Feed         common.Address
	RateDecimals uint8
	MaxAge       time.Duration
	Now          func() time.Time
}

// LiveOracle reads an AggregatorV3 price feed on every call.
type LiveOracle struct {
	cfg    LiveConfig
	caller ethereum.ContractCaller
	feed   abi.ABI
	logger *zap.Logger

	mu           sync.Mutex
	feedDecimals uint8
	hasDecimals  bool
}

// RoundData is the decoded latestRoundData result.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

func NewLiveOracle(cfg LiveConfig, caller ethereum.ContractCaller, logger *zap.Logger) (*LiveOracle, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	if cfg.Feed == (common.Address{}) {
		return nil, fmt.Errorf("feed address is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	feedABI, err := AggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	return &LiveOracle{
		cfg:    cfg,
		caller: caller,
		feed:   feedABI,
		logger: logger,
	}, nil
}

// CurrentRate returns the latest feed answer scaled to RateDecimals.
func (o *LiveOracle) CurrentRate(ctx context.Context) (*big.Int, error) {
	decimals, err := o.decimals(ctx)
	if err != nil {
		return nil, Unavailable(err)
	}

	round, err := o.LatestRoundData(ctx)
	if err != nil {
		return nil, Unavailable(err)
	}
	if err := o.checkRound(round); err != nil {
		o.logger.Warn("price round rejected",
			zap.String("feed", o.cfg.Feed.Hex()),
			zap.String("round_id", round.RoundID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	rate := scaleDecimals(round.Answer, decimals, o.cfg.RateDecimals)
	if err := CheckRate(rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// LatestRoundData calls latestRoundData on the feed.
func (o *LiveOracle) LatestRoundData(ctx context.Context) (RoundData, error) {
	values, err := o.call(ctx, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	if len(values) != 5 {
		return RoundData{}, fmt.Errorf("latestRoundData return size %d", len(values))
	}
	ints := make([]*big.Int, len(values))
	for i, value := range values {
		v, ok := value.(*big.Int)
		if !ok {
			return RoundData{}, fmt.Errorf("latestRoundData field %d unexpected type %T", i, value)
		}
		ints[i] = v
	}
	return RoundData{
		RoundID:         ints[0],
		Answer:          ints[1],
		StartedAt:       ints[2],
		UpdatedAt:       ints[3],
		AnsweredInRound: ints[4],
	}, nil
}

// Description returns the feed's human readable pair name.
func (o *LiveOracle) Description(ctx context.Context) (string, error) {
	values, err := o.call(ctx, "description")
	if err != nil {
		return "", err
	}
	desc, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("description unexpected type %T", values[0])
	}
	return desc, nil
}

// decimals never changes for a deployed feed, so only the first successful
// read is kept. The read runs outside mu; concurrent first callers may each
// hit the chain.
func (o *LiveOracle) decimals(ctx context.Context) (uint8, error) {
	o.mu.Lock()
	cached, ok := o.feedDecimals, o.hasDecimals
	o.mu.Unlock()
	if ok {
		return cached, nil
	}

	values, err := o.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}

	o.mu.Lock()
	o.feedDecimals = decimals
	o.hasDecimals = true
	o.mu.Unlock()
	return decimals, nil
}

func (o *LiveOracle) checkRound(round RoundData) error {
	if round.Answer.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive answer %s", ErrUnavailable, round.Answer)
	}
	if round.UpdatedAt.Sign() == 0 {
		return fmt.Errorf("%w: round %s incomplete", ErrUnavailable, round.RoundID)
	}
	if round.AnsweredInRound.Cmp(round.RoundID) < 0 {
		return fmt.Errorf("%w: round %s answered in %s", ErrUnavailable, round.RoundID, round.AnsweredInRound)
	}
	if o.cfg.MaxAge > 0 && round.UpdatedAt.IsInt64() {
		updated := time.Unix(round.UpdatedAt.Int64(), 0)
		if age := o.cfg.Now().Sub(updated); age > o.cfg.MaxAge {
			return fmt.Errorf("%w: round %s is %s old", ErrUnavailable, round.RoundID, age.Truncate(time.Second))
		}
	}
	return nil
}

func (o *LiveOracle) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := o.feed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	feed := o.cfg.Feed
	msg := ethereum.CallMsg{To: &feed, Data: data}
	resp, err := o.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := o.feed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}

func scaleDecimals(value *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(value)
	switch {
	case from < to:
		out.Mul(out, pow10(int64(to-from)))
	case from > to:
		out.Quo(out, pow10(int64(from-to)))
	}
	return out
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
