package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

// ErrInvalidRoute is reported on quotes whose route cannot be encoded
var ErrInvalidRoute = errors.New("invalid route")

// EncodePath encodes route as a V3 swap path. Exact-output paths run from the
// output token back to the input token.
func EncodePath(route model.Route, tradeType model.TradeType) ([]byte, error) {
	if len(route.Fees) == 0 || len(route.Tokens) != len(route.Fees)+1 {
		return nil, fmt.Errorf("%w: %d tokens for %d pools", ErrInvalidRoute, len(route.Tokens), len(route.Fees))
	}

	n := len(route.Fees)
	path := make([]byte, 0, 20*(n+1)+3*n)
	for i := 0; i <= n; i++ {
		ti, fi := i, i
		if tradeType == model.ExactOut {
			ti, fi = n-i, n-i-1
		}
		path = append(path, route.Tokens[ti].Bytes()...)
		if i < n {
			fee := route.Fees[fi]
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path, nil
}

// QuoteProvider prices routes with the QuoterV2 contract. Every Quote call is
// a single batched execution so that large route sets stay within the node's
// gas ceiling.
type QuoteProvider struct {
	network   types.NetworkID
	contracts types.Contracts
	executor  *batch.Executor
	retry     batch.RetryPolicy
	policy    batch.BatchPolicy
}

var _ provider.Provider[model.QuoteRequest, model.Quote] = (*QuoteProvider)(nil)

// NewQuoteProvider binds quoting to executor with the network's retry and batch policies
func NewQuoteProvider(network types.NetworkID, contracts types.Contracts, executor *batch.Executor, retry batch.RetryPolicy, policy batch.BatchPolicy) *QuoteProvider {
	return &QuoteProvider{network: network, contracts: contracts, executor: executor, retry: retry, policy: policy}
}

// Policies returns the retry and batch policies quotes run under
func (p *QuoteProvider) Policies() (batch.RetryPolicy, batch.BatchPolicy) {
	return p.retry, p.policy
}

// Quote prices every request. The returned slice matches reqs by index;
// requests that failed individually carry Quote.Err.
func (p *QuoteProvider) Quote(ctx context.Context, reqs []model.QuoteRequest) ([]model.Quote, error) {
	quotes := make([]model.Quote, len(reqs))
	calls := make([]multicall.Call, 0, len(reqs))
	index := make([]int, 0, len(reqs))

	for i, req := range reqs {
		quotes[i].Request = req
		data, err := encodeQuote(req)
		if err != nil {
			quotes[i].Err = err
			continue
		}
		calls = append(calls, multicall.Call{Target: p.contracts.QuoterV2, CallData: data})
		index = append(index, i)
	}
	if len(calls) == 0 {
		return quotes, nil
	}

	results, err := p.executor.Execute(ctx, calls, p.retry, p.policy)
	if err != nil {
		return nil, fmt.Errorf("quoting %d routes on %s: %w", len(calls), p.network, err)
	}

	failed := 0
	for j, res := range results {
		q := &quotes[index[j]]
		q.BlockNumber = res.BlockNumber
		if !res.OK() {
			q.Err = res.Err
			failed++
			continue
		}
		if err := decodeQuote(q, res.ReturnData); err != nil {
			q.Err = err
			failed++
		}
	}

	logrus.WithFields(logrus.Fields{
		"network": p.network.String(),
		"routes":  len(calls),
		"failed":  failed,
	}).Debug("Quotes complete")
	return quotes, nil
}

// Fetch quotes a single request
func (p *QuoteProvider) Fetch(ctx context.Context, req model.QuoteRequest) (model.Quote, error) {
	quotes, err := p.Quote(ctx, []model.QuoteRequest{req})
	if err != nil {
		return model.Quote{}, err
	}
	if quotes[0].Err != nil {
		return quotes[0], quotes[0].Err
	}
	return quotes[0], nil
}

func encodeQuote(req model.QuoteRequest) ([]byte, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRoute)
	}
	path, err := EncodePath(req.Route, req.Type)
	if err != nil {
		return nil, err
	}
	method := "quoteExactInput"
	if req.Type == model.ExactOut {
		method = "quoteExactOutput"
	}
	return quoterV2ABI.Pack(method, path, req.Amount)
}

func decodeQuote(q *model.Quote, data []byte) error {
	method := "quoteExactInput"
	if q.Request.Type == model.ExactOut {
		method = "quoteExactOutput"
	}
	out, err := quoterV2ABI.Unpack(method, data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", method, err)
	}
	if len(out) != 4 {
		return fmt.Errorf("decoding %s: expected 4 values, got %d", method, len(out))
	}

	amount, ok1 := out[0].(*big.Int)
	prices, ok2 := out[1].([]*big.Int)
	ticks, ok3 := out[2].([]uint32)
	gas, ok4 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return fmt.Errorf("decoding %s: unexpected value types", method)
	}

	q.Amount = amount
	q.SqrtPriceX96AfterList = prices
	q.InitializedTicksCrossed = ticks
	q.GasEstimate = gas
	return nil
}
