package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updown/internal/domain"
)

const aggregatorV3ABI = `[{"inputs":[],"name":"latestRoundData","outputs":[` +
	`{"internalType":"uint80","name":"roundId","type":"uint80"},` +
	`{"internalType":"int256","name":"answer","type":"int256"},` +
	`{"internalType":"uint256","name":"startedAt","type":"uint256"},` +
	`{"internalType":"uint256","name":"updatedAt","type":"uint256"},` +
	`{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],` +
	`"stateMutability":"view","type":"function"}]`

var (
	aggregatorOnce sync.Once
	aggregatorABI  abi.ABI
	aggregatorErr  error
)

func loadAggregatorABI() (abi.ABI, error) {
	aggregatorOnce.Do(func() {
		aggregatorABI, aggregatorErr = abi.JSON(strings.NewReader(aggregatorV3ABI))
	})
	return aggregatorABI, aggregatorErr
}

// ChainlinkFeed reads latestRoundData from an AggregatorV3 contract.
type ChainlinkFeed struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewChainlinkFeed binds a feed to the aggregator at address.
func NewChainlinkFeed(caller ethereum.ContractCaller, address string) (*ChainlinkFeed, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("oracle: chainlink address %q: %w", address, domain.ErrInvalidAddress)
	}
	parsed, err := loadAggregatorABI()
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &ChainlinkFeed{
		caller:  caller,
		address: common.HexToAddress(address),
		abi:     parsed,
	}, nil
}

// Latest implements domain.PriceFeed.
func (f *ChainlinkFeed) Latest(ctx context.Context) (domain.Snapshot, error) {
	data, err := f.abi.Pack("latestRoundData")
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: pack latestRoundData: %w", err)
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: data}, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: call %s: %w", f.address.Hex(), err)
	}
	vals, err := f.abi.Unpack("latestRoundData", out)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: unpack latestRoundData: %w", err)
	}
	if len(vals) != 5 {
		return domain.Snapshot{}, fmt.Errorf("oracle: latestRoundData returned %d values", len(vals))
	}

	roundID, ok1 := vals[0].(*big.Int)
	answer, ok2 := vals[1].(*big.Int)
	updatedAt, ok3 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return domain.Snapshot{}, fmt.Errorf("oracle: unexpected latestRoundData types %T %T %T", vals[0], vals[1], vals[3])
	}

	id, err := domain.RoundIDFromBig(roundID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: round id: %w", err)
	}
	if !answer.IsInt64() {
		return domain.Snapshot{}, fmt.Errorf("oracle: answer %s: %w", answer, domain.ErrOraclePriceRange)
	}
	if !updatedAt.IsInt64() {
		return domain.Snapshot{}, fmt.Errorf("oracle: updatedAt %s out of range", updatedAt)
	}

	return domain.Snapshot{
		RoundID:    id,
		Price:      answer.Int64(),
		ReportedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

// ChainlinkResolver resolves hex aggregator addresses into ChainlinkFeeds
// sharing one RPC connection.
type ChainlinkResolver struct {
	caller ethereum.ContractCaller
}

// NewChainlinkResolver creates a resolver over caller, typically an
// *ethclient.Client.
func NewChainlinkResolver(caller ethereum.ContractCaller) *ChainlinkResolver {
	return &ChainlinkResolver{caller: caller}
}

// Resolve implements domain.FeedResolver.
func (r *ChainlinkResolver) Resolve(ctx context.Context, address string) (domain.PriceFeed, error) {
	return NewChainlinkFeed(r.caller, address)
}

// Compile-time interface checks.
var (
	_ domain.PriceFeed    = (*ChainlinkFeed)(nil)
	_ domain.FeedResolver = (*ChainlinkResolver)(nil)
)
