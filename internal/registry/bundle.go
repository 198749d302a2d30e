package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/cache"
	"github.com/yourorg/router-providers/internal/circuitbreaker"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/rpc"
	"github.com/yourorg/router-providers/internal/types"
)

// Caches are the per-network caches behind a bundle's decorators
type Caches struct {
	Token        *cache.Cache[common.Address, model.Token]
	BlockedToken *cache.Cache[common.Address, model.Token]
	Pool         *cache.Cache[model.PoolKey, model.Pool]
	GasPrice     *cache.Cache[fetch.GasPriceKey, model.GasPrice]
}

func newCaches(n types.NetworkID) Caches {
	return Caches{
		Token:        cache.New[common.Address, model.Token](cache.WithName(n.String() + "-token")),
		BlockedToken: cache.New[common.Address, model.Token](cache.WithName(n.String() + "-blocked-token")),
		Pool:         cache.New[model.PoolKey, model.Pool](cache.WithName(n.String() + "-pool")),
		GasPrice:     cache.New[fetch.GasPriceKey, model.GasPrice](cache.WithName(n.String() + "-gas-price")),
	}
}

// Sizes returns the number of stored entries per cache
func (c Caches) Sizes() map[string]int {
	return map[string]int{
		"token":         c.Token.Len(),
		"blocked_token": c.BlockedToken.Len(),
		"pool":          c.Pool.Len(),
		"gas_price":     c.GasPrice.Len(),
	}
}

// StartJanitors sweeps the expiring caches every interval until ctx is done
func (c Caches) StartJanitors(ctx context.Context, interval time.Duration) {
	c.Pool.StartJanitor(ctx, interval)
	c.GasPrice.StartJanitor(ctx, interval)
	c.Token.StartJanitor(ctx, interval)
}

// Bundle is the complete provider set of one network
type Bundle struct {
	Network   types.NetworkID
	Contracts types.Contracts

	Executor      rpc.Executor
	Multicall     *multicall.Client
	QuoteExecutor *batch.Executor

	TokenProvider        provider.Provider[common.Address, model.Token]
	TokenList            *fetch.TokenListProvider
	BlockedTokenProvider provider.Provider[common.Address, model.Token]
	PoolProvider         provider.Provider[model.PoolKey, model.Pool]
	QuoteProvider        *fetch.QuoteProvider
	GasPriceProvider     provider.Provider[fetch.GasPriceKey, model.GasPrice]
	GasModelFactory      fetch.GasModelFactory
	SubgraphProvider     *fetch.SubgraphProvider

	Caches Caches

	poolSource *fetch.PoolProvider
	poolTTL    time.Duration
}

// IsBlocked reports whether address is on the blocked token list
func (b *Bundle) IsBlocked(ctx context.Context, address common.Address) (bool, error) {
	_, err := b.BlockedTokenProvider.Fetch(ctx, address)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, provider.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GasModel builds a gas model from the current gas price
func (b *Bundle) GasModel(ctx context.Context) (*fetch.GasModel, error) {
	price, err := b.GasPriceProvider.Fetch(ctx, fetch.LatestGasPrice)
	if err != nil {
		return nil, fmt.Errorf("network %s: gas price: %w", b.Network, err)
	}
	return b.GasModelFactory.Build(price)
}

// Pools returns the initialized pools among keys. Cached pools are served from
// the pool cache and the rest are read in a single multicall and then cached.
func (b *Bundle) Pools(ctx context.Context, keys []model.PoolKey) ([]model.Pool, error) {
	out := make([]model.Pool, 0, len(keys))
	var missing []model.PoolKey
	for _, key := range keys {
		key = key.Normalized()
		if pool, ok := b.Caches.Pool.Get(key); ok {
			out = append(out, pool)
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := b.poolSource.FetchMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, pool := range fetched {
		b.Caches.Pool.Set(model.PoolKey{TokenA: pool.Token0, TokenB: pool.Token1, Fee: pool.Fee}.Normalized(), pool, b.poolTTL)
	}
	return append(out, fetched...), nil
}

// BreakerState returns the state of the executor's circuit breaker, if it has one
func (b *Bundle) BreakerState() (circuitbreaker.State, bool) {
	guarded, ok := b.Executor.(interface{ BreakerState() circuitbreaker.State })
	if !ok {
		return 0, false
	}
	return guarded.BreakerState(), true
}

// Close releases the bundle's executor
func (b *Bundle) Close() {
	b.Executor.Close()
}
