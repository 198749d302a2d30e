package fetch

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestEIP1559GasPriceProvider(t *testing.T) {
	exec := &stubExecutor{history: &ethereum.FeeHistory{
		OldestBlock:  big.NewInt(100),
		Reward:       [][]*big.Int{{gwei(1)}, {gwei(2)}, {gwei(3)}},
		BaseFee:      []*big.Int{gwei(20), gwei(21), gwei(22), gwei(30)},
		GasUsedRatio: []float64{0.5, 0.6, 0.9},
	}}

	price, err := NewEIP1559GasPriceProvider(types.Mainnet, exec).Fetch(context.Background(), LatestGasPrice)
	require.NoError(t, err)
	assert.Equal(t, gwei(32), price.Wei, "Price should be next base fee plus mean priority fee")
	assert.Equal(t, gwei(30), price.BaseFee)
	assert.Equal(t, gwei(2), price.PriorityFee)
	assert.Equal(t, uint64(102), price.BlockNumber)
	assert.False(t, price.FetchedAt.IsZero())
}

func TestEIP1559GasPriceProvider_IgnoresPriorityFeeSpikes(t *testing.T) {
	exec := &stubExecutor{history: &ethereum.FeeHistory{
		OldestBlock:  big.NewInt(200),
		Reward:       [][]*big.Int{{gwei(1)}, {gwei(2)}, {gwei(100)}, {gwei(2)}, {gwei(3)}},
		BaseFee:      []*big.Int{gwei(10), gwei(10), gwei(10), gwei(10), gwei(10), gwei(10)},
		GasUsedRatio: []float64{0.5, 0.5, 0.5, 0.5, 0.5},
	}}

	price, err := NewEIP1559GasPriceProvider(types.Mainnet, exec).Fetch(context.Background(), LatestGasPrice)
	require.NoError(t, err)
	assert.Equal(t, gwei(2), price.PriorityFee, "A single block paying 100 gwei tips should not move the estimate")
	assert.Equal(t, gwei(12), price.Wei)
}

func TestEIP1559GasPriceProvider_NoBaseFee(t *testing.T) {
	tests := []struct {
		name    string
		history *ethereum.FeeHistory
	}{
		{name: "empty history", history: &ethereum.FeeHistory{}},
		{name: "zero base fee", history: &ethereum.FeeHistory{BaseFee: []*big.Int{big.NewInt(0), big.NewInt(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEIP1559GasPriceProvider(types.Celo, &stubExecutor{history: tt.history}).Fetch(context.Background(), LatestGasPrice)
			assert.ErrorIs(t, err, provider.ErrNotFound)
		})
	}
}

func TestGasPriceFallbackChain(t *testing.T) {
	exec := &stubExecutor{history: &ethereum.FeeHistory{}, gasPrice: gwei(5)}
	chain := provider.NewFallback[GasPriceKey, model.GasPrice]("gas",
		NewEIP1559GasPriceProvider(types.Celo, exec),
		NewLegacyGasPriceProvider(types.Celo, exec),
	)

	price, err := chain.Fetch(context.Background(), LatestGasPrice)
	require.NoError(t, err)
	assert.Equal(t, gwei(5), price.Wei, "Legacy price should be used without a base fee")

	exec.feeErr = provider.Transient(assert.AnError)
	_, err = chain.Fetch(context.Background(), LatestGasPrice)
	assert.ErrorIs(t, err, provider.ErrTransient, "Transient fee history failures should not fall back")
}

func TestLegacyGasPriceProvider_Errors(t *testing.T) {
	_, err := NewLegacyGasPriceProvider(types.Mainnet, &stubExecutor{gasErr: provider.ErrUnavailable}).Fetch(context.Background(), LatestGasPrice)
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	_, err = NewLegacyGasPriceProvider(types.Mainnet, &stubExecutor{}).Fetch(context.Background(), LatestGasPrice)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestHeuristicGasModel(t *testing.T) {
	_, err := NewHeuristicGasModelFactory().Build(model.GasPrice{})
	assert.ErrorIs(t, err, provider.ErrConfiguration)

	m, err := NewHeuristicGasModelFactory().Build(model.GasPrice{Wei: gwei(10)})
	require.NoError(t, err)

	route := model.Route{Tokens: []common.Address{wethAddr, usdcAddr, daiAddr}, Fees: []model.FeeAmount{model.FeeLow, model.FeeLowest}}
	assert.Equal(t, uint64(2_000+2*80_000+3*31_000), m.EstimateGas(route, []uint32{1, 2}))

	cost := m.EstimateCost(model.Quote{Request: model.QuoteRequest{Route: route}, InitializedTicksCrossed: []uint32{0, 0}})
	assert.Equal(t, new(big.Int).Mul(big.NewInt(162_000), gwei(10)), cost)
	assert.Equal(t, gwei(10), m.GasPrice())
}
