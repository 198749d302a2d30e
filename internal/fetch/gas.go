package fetch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/yourorg/router-providers/internal/aggregate"
	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/rpc"
	"github.com/yourorg/router-providers/internal/types"
)

// GasPriceKey keys gas price lookups. There is one current price per network.
type GasPriceKey struct{}

// LatestGasPrice is the only GasPriceKey value
var LatestGasPrice = GasPriceKey{}

const (
	feeHistoryBlocks     = 20
	feeHistoryPercentile = 50
)

// EIP1559GasPriceProvider prices gas as the next block's base fee plus the
// mean median priority fee of recent blocks, ignoring outlier blocks
type EIP1559GasPriceProvider struct {
	network  types.NetworkID
	executor rpc.Executor
	now      func() time.Time
}

var _ provider.Provider[GasPriceKey, model.GasPrice] = (*EIP1559GasPriceProvider)(nil)

// NewEIP1559GasPriceProvider reads fee history through executor
func NewEIP1559GasPriceProvider(network types.NetworkID, executor rpc.Executor) *EIP1559GasPriceProvider {
	return &EIP1559GasPriceProvider{network: network, executor: executor, now: time.Now}
}

// Fetch implements provider.Provider. Networks without a base fee yield ErrNotFound.
func (p *EIP1559GasPriceProvider) Fetch(ctx context.Context, _ GasPriceKey) (model.GasPrice, error) {
	history, err := p.executor.FeeHistory(ctx, feeHistoryBlocks, nil, []float64{feeHistoryPercentile})
	if err != nil {
		return model.GasPrice{}, fmt.Errorf("fee history on %s: %w", p.network, err)
	}
	if history == nil || len(history.BaseFee) == 0 {
		return model.GasPrice{}, fmt.Errorf("fee history on %s has no base fee: %w", p.network, provider.ErrNotFound)
	}
	nextBaseFee := history.BaseFee[len(history.BaseFee)-1]
	if nextBaseFee == nil || nextBaseFee.Sign() == 0 {
		return model.GasPrice{}, fmt.Errorf("%s blocks carry no base fee: %w", p.network, provider.ErrNotFound)
	}

	samples := make([]*big.Int, 0, len(history.Reward))
	for _, rewards := range history.Reward {
		if len(rewards) > 0 {
			samples = append(samples, rewards[0])
		}
	}
	priority := aggregate.Mean(aggregate.FilterOutliers(samples))

	price := model.GasPrice{
		Wei:         new(big.Int).Add(nextBaseFee, priority),
		BaseFee:     new(big.Int).Set(nextBaseFee),
		PriorityFee: priority,
		FetchedAt:   p.now(),
	}
	if history.OldestBlock != nil && len(history.GasUsedRatio) > 0 {
		price.BlockNumber = history.OldestBlock.Uint64() + uint64(len(history.GasUsedRatio)) - 1
	}
	return price, nil
}

// LegacyGasPriceProvider asks the node for its eth_gasPrice suggestion
type LegacyGasPriceProvider struct {
	network  types.NetworkID
	executor rpc.Executor
	now      func() time.Time
}

var _ provider.Provider[GasPriceKey, model.GasPrice] = (*LegacyGasPriceProvider)(nil)

// NewLegacyGasPriceProvider reads gas prices through executor
func NewLegacyGasPriceProvider(network types.NetworkID, executor rpc.Executor) *LegacyGasPriceProvider {
	return &LegacyGasPriceProvider{network: network, executor: executor, now: time.Now}
}

// Fetch implements provider.Provider
func (p *LegacyGasPriceProvider) Fetch(ctx context.Context, _ GasPriceKey) (model.GasPrice, error) {
	wei, err := p.executor.SuggestGasPrice(ctx)
	if err != nil {
		return model.GasPrice{}, fmt.Errorf("gas price on %s: %w", p.network, err)
	}
	if wei == nil {
		return model.GasPrice{}, fmt.Errorf("gas price on %s: empty answer: %w", p.network, provider.ErrUnavailable)
	}
	return model.GasPrice{Wei: wei, FetchedAt: p.now()}, nil
}
