package fetch

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

var (
	slot0Call     = mustPack(poolABI, "slot0")
	liquidityCall = mustPack(poolABI, "liquidity")
)

// PoolAddress computes the deterministic V3 pool address for key
func PoolAddress(contracts types.Contracts, key model.PoolKey) common.Address {
	token0, token1 := key.Sorted()
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(key.Fee)).Bytes(), 32),
	)
	return crypto.CreateAddress2(contracts.V3Factory, salt, contracts.PoolInitHash.Bytes())
}

// PoolProvider reads V3 pool state through the multicall batcher
type PoolProvider struct {
	network   types.NetworkID
	contracts types.Contracts
	batcher   multicall.Batcher
}

var _ provider.Provider[model.PoolKey, model.Pool] = (*PoolProvider)(nil)

// NewPoolProvider reads pools deployed by the network's V3 factory
func NewPoolProvider(network types.NetworkID, contracts types.Contracts, batcher multicall.Batcher) *PoolProvider {
	return &PoolProvider{network: network, contracts: contracts, batcher: batcher}
}

// Fetch returns the state of a single pool. Pools that are not deployed or not
// initialized yield ErrNotFound.
func (p *PoolProvider) Fetch(ctx context.Context, key model.PoolKey) (model.Pool, error) {
	pools, err := p.FetchMany(ctx, []model.PoolKey{key})
	if err != nil {
		return model.Pool{}, err
	}
	if len(pools) == 0 {
		return model.Pool{}, fmt.Errorf("pool %s/%s fee %d on %s: %w", key.TokenA.Hex(), key.TokenB.Hex(), key.Fee, p.network, provider.ErrNotFound)
	}
	return pools[0], nil
}

// FetchMany reads every key in one round-trip and returns the pools that exist,
// in key order
func (p *PoolProvider) FetchMany(ctx context.Context, keys []model.PoolKey) ([]model.Pool, error) {
	calls := make([]multicall.Call, 0, 2*len(keys))
	addrs := make([]common.Address, len(keys))
	for i, key := range keys {
		addrs[i] = PoolAddress(p.contracts, key)
		calls = append(calls,
			multicall.Call{Target: addrs[i], CallData: slot0Call},
			multicall.Call{Target: addrs[i], CallData: liquidityCall},
		)
	}

	resp, err := p.batcher.Multicall(ctx, calls, multicall.CallOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading %d pools on %s: %w", len(keys), p.network, err)
	}
	if len(resp.Results) != len(calls) {
		return nil, fmt.Errorf("reading pools on %s: got %d results for %d calls", p.network, len(resp.Results), len(calls))
	}

	pools := make([]model.Pool, 0, len(keys))
	for i, key := range keys {
		if key.TokenA == key.TokenB {
			continue
		}
		slot0, liq := resp.Results[2*i], resp.Results[2*i+1]
		if !slot0.Success || !liq.Success || len(slot0.ReturnData) == 0 || len(liq.ReturnData) == 0 {
			continue
		}
		pool, err := decodePool(addrs[i], key, slot0.ReturnData, liq.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("pool %s on %s: %w", addrs[i].Hex(), p.network, err)
		}
		if pool.SqrtPriceX96.Sign() == 0 {
			continue
		}
		pool.BlockNumber = resp.BlockNumber
		pools = append(pools, pool)
	}
	return pools, nil
}

func decodePool(addr common.Address, key model.PoolKey, slot0Data, liquidityData []byte) (model.Pool, error) {
	out, err := poolABI.Unpack("slot0", slot0Data)
	if err != nil {
		return model.Pool{}, fmt.Errorf("decoding slot0: %w", err)
	}
	if len(out) < 2 {
		return model.Pool{}, fmt.Errorf("decoding slot0: expected 7 values, got %d", len(out))
	}
	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return model.Pool{}, fmt.Errorf("decoding slot0: unexpected price type %T", out[0])
	}
	tick, ok := out[1].(*big.Int)
	if !ok {
		return model.Pool{}, fmt.Errorf("decoding slot0: unexpected tick type %T", out[1])
	}
	liquidity, err := unpackBig(poolABI, "liquidity", liquidityData, 0)
	if err != nil {
		return model.Pool{}, err
	}

	token0, token1 := key.Sorted()
	return model.Pool{
		Address:      addr,
		Token0:       token0,
		Token1:       token1,
		Fee:          key.Fee,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick.Int64(),
		Liquidity:    liquidity,
	}, nil
}
