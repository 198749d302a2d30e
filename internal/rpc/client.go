// Package rpc provides the per-network on-chain call executor. It wraps a go-ethereum
// client with request rate limiting, a circuit breaker and call metrics.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/router-providers/internal/circuitbreaker"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

// Executor is the subset of an Ethereum JSON-RPC client the providers need.
// *ethclient.Client satisfies it.
type Executor interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

var _ Executor = (*ethclient.Client)(nil)
var _ Executor = (*Client)(nil)

// Options tunes the executor. Zero values fall back to DefaultOptions.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	BreakerFailures   int
	BreakerReset      time.Duration
	Sink              metrics.Sink
}

// DefaultOptions returns the executor defaults
func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 25,
		Burst:             50,
		RetryMax:          2,
		RetryWaitMin:      100 * time.Millisecond,
		RetryWaitMax:      time.Second,
		BreakerFailures:   5,
		BreakerReset:      30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = d.RequestsPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = d.Burst
	}
	if o.RetryMax < 0 {
		o.RetryMax = d.RetryMax
	}
	if o.RetryWaitMin <= 0 {
		o.RetryWaitMin = d.RetryWaitMin
	}
	if o.RetryWaitMax <= 0 {
		o.RetryWaitMax = d.RetryWaitMax
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerReset <= 0 {
		o.BreakerReset = d.BreakerReset
	}
	return o
}

// Client is a guarded Executor bound to one network
type Client struct {
	network  types.NetworkID
	endpoint string
	backend  Executor
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	sink     metrics.Sink
	tags     metrics.Tags
}

// ValidateEndpoint checks that endpoint is an absolute http(s) or ws(s) URL
func ValidateEndpoint(network types.NetworkID, endpoint string) error {
	if endpoint == "" {
		return &provider.ConfigurationError{Network: network, Reason: "missing RPC endpoint"}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return &provider.ConfigurationError{Network: network, Reason: "malformed RPC endpoint", Err: err}
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return &provider.ConfigurationError{Network: network, Reason: fmt.Sprintf("unsupported RPC endpoint scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return &provider.ConfigurationError{Network: network, Reason: "RPC endpoint has no host"}
	}
	return nil
}

// Dial connects to endpoint and returns a guarded executor for network
func Dial(ctx context.Context, network types.NetworkID, endpoint string, opts Options) (*Client, error) {
	if err := ValidateEndpoint(network, endpoint); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	retryClient := newRetryClient(opts)
	rpcClient, err := gethrpc.DialOptions(ctx, endpoint, gethrpc.WithHTTPClient(retryClient.StandardClient()))
	if err != nil {
		return nil, &provider.ConfigurationError{Network: network, Reason: "dialing RPC endpoint", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"network": network.String(),
		"rps":     opts.RequestsPerSecond,
		"burst":   opts.Burst,
	}).Info("RPC executor connected")

	return NewClient(network, endpoint, ethclient.NewClient(rpcClient), opts), nil
}

// NewClient guards an existing backend
func NewClient(network types.NetworkID, endpoint string, backend Executor, opts Options) *Client {
	opts = opts.withDefaults()
	breaker := circuitbreaker.New(network.String()+"-rpc", circuitbreaker.Thresholds{
		MaxConsecutiveFailures: opts.BreakerFailures,
	}).WithResetDelay(opts.BreakerReset)

	return &Client{
		network:  network,
		endpoint: endpoint,
		backend:  backend,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker:  breaker,
		sink:     metrics.Safe(opts.Sink),
		tags:     metrics.Tags{"network": network.String()},
	}
}

// newRetryClient creates the HTTP client used by the JSON-RPC transport
func newRetryClient(opts Options) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = opts.RetryWaitMin
	c.RetryWaitMax = opts.RetryWaitMax
	c.Logger = leveledLogger{entry: logrus.WithField("component", "rpc-http")}
	return c
}

// Network returns the network this client is bound to
func (c *Client) Network() types.NetworkID {
	return c.network
}

// Endpoint returns the RPC URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// BreakerState exposes the circuit breaker state for status reporting
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

// do runs fn under the breaker and the limiter, then classifies its error
func (c *Client) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("%s %s: %w: %w", c.network, method, provider.ErrUnavailable, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.breaker.Release()
		return Classify(fmt.Errorf("%s %s: rate limiter: %w", c.network, method, err))
	}

	start := time.Now()
	err := fn(ctx)
	c.sink.PutMetric("rpc."+method+".latency", float64(time.Since(start).Milliseconds()), metrics.Milliseconds, c.tags)

	if err == nil {
		c.breaker.RecordSuccess()
		return nil
	}

	c.sink.PutMetric("rpc."+method+".error", 1, metrics.Count, c.tags)
	classified := Classify(err)
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the caller gave up; says nothing about the endpoint
		c.breaker.Release()
	case IsTransportFailure(err):
		c.breaker.RecordFailure(err)
	default:
		c.breaker.RecordSuccess()
	}
	return fmt.Errorf("%s %s: %w", c.network, method, classified)
}

// CallContract executes a raw eth_call
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.backend.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// FeeHistory executes eth_feeHistory
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	var out *ethereum.FeeHistory
	err := c.do(ctx, "eth_feeHistory", func(ctx context.Context) error {
		var err error
		out, err = c.backend.FeeHistory(ctx, blockCount, lastBlock, rewardPercentiles)
		return err
	})
	return out, err
}

// SuggestGasPrice executes eth_gasPrice
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "eth_gasPrice", func(ctx context.Context) error {
		var err error
		out, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

// BlockNumber executes eth_blockNumber
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		out, err = c.backend.BlockNumber(ctx)
		return err
	})
	return out, err
}

// ChainID executes eth_chainId
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		out, err = c.backend.ChainID(ctx)
		return err
	})
	return out, err
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.backend.Close()
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) fields(kv []interface{}) *logrus.Entry {
	e := l.entry
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.WithField(fmt.Sprint(kv[i]), kv[i+1])
	}
	return e
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
