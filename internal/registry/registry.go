// Package registry builds one independent provider bundle per requested network.
// Each bundle owns its own RPC executor, caches and decorator chains; networks share
// no mutable state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/cache"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/rpc"
	"github.com/yourorg/router-providers/internal/types"
)

// ErrNetworkNotConfigured is returned by Bundles.Get for a network that was not built
var ErrNetworkNotConfigured = errors.New("network not configured")

// Dialer opens the RPC executor for one network
type Dialer func(ctx context.Context, network types.NetworkID, endpoint string) (rpc.Executor, error)

// CacheTTLs sets the lifetime of each per-network cache. Zero keeps entries forever.
type CacheTTLs struct {
	Token    time.Duration
	Pool     time.Duration
	GasPrice time.Duration
}

// DefaultCacheTTLs returns token entries without expiry, pools for a minute and gas prices for 15s
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{Token: 0, Pool: 60 * time.Second, GasPrice: 15 * time.Second}
}

// Registry holds the settings shared by every bundle it builds
type Registry struct {
	dialer        Dialer
	rpcOpts       rpc.Options
	sink          metrics.Sink
	retry         batch.RetryPolicy
	policy        batch.BatchPolicy
	ttls          CacheTTLs
	tokenList     model.TokenList
	blockedList   model.TokenList
	subgraphURI   string
	httpClient    *http.Client
	gasPerCall    uint64
	parallelism   int
	verifyChainID bool
}

// Option configures a Registry
type Option func(*Registry)

// WithDialer replaces the go-ethereum dialer, mostly for tests
func WithDialer(d Dialer) Option {
	return func(r *Registry) { r.dialer = d }
}

// WithRPCOptions tunes the executors created by the default dialer
func WithRPCOptions(opts rpc.Options) Option {
	return func(r *Registry) { r.rpcOpts = opts }
}

// WithMetrics reports every component's metrics to sink
func WithMetrics(sink metrics.Sink) Option {
	return func(r *Registry) { r.sink = metrics.Safe(sink) }
}

// WithQuotePolicies sets the retry and batch policies of every quote provider
func WithQuotePolicies(retry batch.RetryPolicy, policy batch.BatchPolicy) Option {
	return func(r *Registry) {
		r.retry = retry
		r.policy = policy
	}
}

// WithCacheTTLs sets the cache lifetimes
func WithCacheTTLs(ttls CacheTTLs) Option {
	return func(r *Registry) { r.ttls = ttls }
}

// WithTokenLists replaces the embedded token list and blocked token list
func WithTokenLists(tokens, blocked model.TokenList) Option {
	return func(r *Registry) {
		r.tokenList = tokens
		r.blockedList = blocked
	}
}

// WithSubgraph sets the pool-discovery URI and the HTTP client used to read it
func WithSubgraph(uri string, client *http.Client) Option {
	return func(r *Registry) {
		r.subgraphURI = uri
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithMulticallGas sets the gas limit attached to each multicall inner call
func WithMulticallGas(gas uint64) Option {
	return func(r *Registry) { r.gasPerCall = gas }
}

// WithQuoteParallelism bounds how many quote chunks run at once per network
func WithQuoteParallelism(n int) Option {
	return func(r *Registry) { r.parallelism = n }
}

// WithChainIDVerification fails a network whose RPC reports a different chain id
func WithChainIDVerification() Option {
	return func(r *Registry) { r.verifyChainID = true }
}

// New creates a registry with default policies, caches and the embedded token lists
func New(opts ...Option) *Registry {
	r := &Registry{
		rpcOpts:     rpc.DefaultOptions(),
		sink:        metrics.Nop{},
		retry:       batch.DefaultRetryPolicy(),
		policy:      batch.DefaultBatchPolicy(),
		ttls:        DefaultCacheTTLs(),
		tokenList:   fetch.DefaultTokenList(),
		blockedList: fetch.UnsupportedTokenList(),
		subgraphURI: fetch.DefaultSubgraphURI,
		httpClient:  fetch.StandardClient(),
		gasPerCall:  multicall.DefaultGasPerCall,
		parallelism: batch.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dialer == nil {
		r.dialer = r.dialRPC
	}
	return r
}

func (r *Registry) dialRPC(ctx context.Context, network types.NetworkID, endpoint string) (rpc.Executor, error) {
	opts := r.rpcOpts
	if opts.Sink == nil {
		opts.Sink = r.sink
	}
	return rpc.Dial(ctx, network, endpoint, opts)
}

// Build creates one bundle per distinct network in networks. Every network is
// validated before anything is dialed, and any failure fails the whole build:
// executors dialed so far are closed and no bundles are returned.
func (r *Registry) Build(ctx context.Context, networks []types.NetworkID, endpoints map[types.NetworkID]string) (Bundles, error) {
	requested := dedupe(networks)

	var errs []error
	for _, n := range requested {
		if err := validate(n, endpoints[n]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	built := make([]*Bundle, len(requested))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range requested {
		i, n := i, n
		g.Go(func() error {
			b, err := r.build(gctx, n, endpoints[n])
			if err != nil {
				return err
			}
			built[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, b := range built {
			if b != nil {
				b.Close()
			}
		}
		logrus.WithError(err).Error("Provider registry build failed")
		return nil, err
	}

	bundles := make(Bundles, len(built))
	for _, b := range built {
		bundles[b.Network] = b
	}
	logrus.WithField("networks", bundles.Networks()).Info("Provider registry built")
	return bundles, nil
}

func validate(n types.NetworkID, endpoint string) error {
	if !n.IsSupported() {
		return &provider.ConfigurationError{Network: n, Reason: "unsupported network"}
	}
	return rpc.ValidateEndpoint(n, endpoint)
}

func dedupe(networks []types.NetworkID) []types.NetworkID {
	seen := make(map[types.NetworkID]bool, len(networks))
	out := make([]types.NetworkID, 0, len(networks))
	for _, n := range networks {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// build wires the executor, raw providers and decorators of one network
func (r *Registry) build(ctx context.Context, n types.NetworkID, endpoint string) (*Bundle, error) {
	contracts, _ := types.ContractsFor(n)

	exec, err := r.dialer(ctx, n, endpoint)
	if err != nil {
		if errors.Is(err, provider.ErrConfiguration) {
			return nil, err
		}
		return nil, &provider.ConfigurationError{Network: n, Reason: "dialing RPC endpoint", Err: err}
	}

	if r.verifyChainID {
		if err := verifyChainID(ctx, n, exec); err != nil {
			exec.Close()
			return nil, err
		}
	}

	tags := metrics.Tags{"network": n.String()}
	mc := multicall.New(exec, contracts.Multicall, r.gasPerCall)
	caches := newCaches(n)

	tokenList := fetch.NewTokenListProvider(n, r.tokenList)
	tokens := provider.NewCaching[common.Address, model.Token]("token",
		provider.NewFallback[common.Address, model.Token]("token", tokenList, fetch.NewOnChainTokenProvider(n, mc)),
		caches.Token, r.ttls.Token,
	).WithMetrics(r.sink, tags)

	blocked := provider.NewCaching[common.Address, model.Token]("blocked_token",
		fetch.NewTokenListProvider(n, r.blockedList),
		caches.BlockedToken, cache.NoExpiry,
	).WithMetrics(r.sink, tags)

	poolSource := fetch.NewPoolProvider(n, contracts, mc)
	cachedPools := provider.NewCaching[model.PoolKey, model.Pool]("pool", poolSource, caches.Pool, r.ttls.Pool).
		WithMetrics(r.sink, tags)
	// one cache entry per pool whichever way round the pair is given
	pools := provider.Func[model.PoolKey, model.Pool](func(ctx context.Context, key model.PoolKey) (model.Pool, error) {
		return cachedPools.Fetch(ctx, key.Normalized())
	})

	gas := provider.NewCaching[fetch.GasPriceKey, model.GasPrice]("gas_price",
		provider.NewFallback[fetch.GasPriceKey, model.GasPrice]("gas_price",
			fetch.NewEIP1559GasPriceProvider(n, exec),
			fetch.NewLegacyGasPriceProvider(n, exec),
		),
		caches.GasPrice, r.ttls.GasPrice,
	).WithMetrics(r.sink, tags)

	quoteExec := batch.New("quote", n, mc).WithMetrics(r.sink).WithParallelism(r.parallelism)

	logrus.WithFields(logrus.Fields{
		"network":   n.String(),
		"tokens":    tokenList.Len(),
		"multicall": contracts.Multicall.Hex(),
	}).Info("Network providers ready")

	return &Bundle{
		Network:              n,
		Contracts:            contracts,
		Executor:             exec,
		Multicall:            mc,
		QuoteExecutor:        quoteExec,
		TokenProvider:        tokens,
		TokenList:            tokenList,
		BlockedTokenProvider: blocked,
		PoolProvider:         pools,
		QuoteProvider:        fetch.NewQuoteProvider(n, contracts, quoteExec, r.retry, r.policy),
		GasPriceProvider:     gas,
		GasModelFactory:      fetch.NewHeuristicGasModelFactory(),
		SubgraphProvider:     fetch.NewSubgraphProvider(n, r.subgraphURI, r.httpClient),
		Caches:               caches,
		poolSource:           poolSource,
		poolTTL:              r.ttls.Pool,
	}, nil
}

func verifyChainID(ctx context.Context, n types.NetworkID, exec rpc.Executor) error {
	id, err := exec.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("network %s: reading chain id: %w", n, err)
	}
	if !id.IsUint64() || id.Uint64() != uint64(n) {
		return &provider.ConfigurationError{Network: n, Reason: fmt.Sprintf("RPC endpoint serves chain id %s", id)}
	}
	return nil
}

// Bundles maps each built network to its bundle. It is never mutated after Build.
type Bundles map[types.NetworkID]*Bundle

// Get returns the bundle for network, or ErrNetworkNotConfigured
func (b Bundles) Get(network types.NetworkID) (*Bundle, error) {
	bundle, ok := b[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotConfigured, network)
	}
	return bundle, nil
}

// Networks returns the built networks ordered by chain id
func (b Bundles) Networks() []types.NetworkID {
	ids := make([]types.NetworkID, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StartJanitors sweeps every bundle's caches each interval until ctx is done
func (b Bundles) StartJanitors(ctx context.Context, interval time.Duration) {
	for _, bundle := range b {
		bundle.Caches.StartJanitors(ctx, interval)
	}
}

// Close releases every bundle's executor
func (b Bundles) Close() {
	for _, bundle := range b {
		bundle.Close()
	}
}
