package fetch

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

func TestEncodePath(t *testing.T) {
	route := model.Route{Tokens: []common.Address{wethAddr, usdcAddr}, Fees: []model.FeeAmount{model.FeeLow}}

	in, err := EncodePath(route, model.ExactIn)
	require.NoError(t, err)
	want := append(append(append([]byte{}, wethAddr.Bytes()...), 0x00, 0x01, 0xf4), usdcAddr.Bytes()...)
	assert.Equal(t, want, in)

	out, err := EncodePath(route, model.ExactOut)
	require.NoError(t, err)
	wantOut := append(append(append([]byte{}, usdcAddr.Bytes()...), 0x00, 0x01, 0xf4), wethAddr.Bytes()...)
	assert.Equal(t, wantOut, out, "Exact-output paths should be reversed")

	multi := model.Route{Tokens: []common.Address{wethAddr, usdcAddr, daiAddr}, Fees: []model.FeeAmount{model.FeeLow, model.FeeLowest}}
	rev, err := EncodePath(multi, model.ExactOut)
	require.NoError(t, err)
	assert.Len(t, rev, 3*20+2*3)
	assert.Equal(t, daiAddr.Bytes(), rev[:20])
	assert.Equal(t, []byte{0x00, 0x00, 0x64}, rev[20:23], "Last pool fee should come first")

	_, err = EncodePath(model.Route{Tokens: []common.Address{wethAddr}}, model.ExactIn)
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

// doublingQuoter answers quoteExactInput with twice the input amount and
// reverts for amounts of 13
func doublingQuoter(t *testing.T) func(multicall.Call) multicall.Result {
	return func(c multicall.Call) multicall.Result {
		method, err := quoterV2ABI.MethodById(c.CallData[:4])
		if !assert.NoError(t, err) {
			return reverted()
		}
		args, err := method.Inputs.Unpack(c.CallData[4:])
		if !assert.NoError(t, err) {
			return reverted()
		}
		amount := args[1].(*big.Int)
		if amount.Int64() == 13 {
			return reverted()
		}
		path := args[0].([]byte)
		hops := (len(path) - 20) / 23
		ticks := make([]uint32, hops)
		prices := make([]*big.Int, hops)
		for i := range prices {
			prices[i] = big.NewInt(1 << 20)
			ticks[i] = 1
		}
		data, err := method.Outputs.Pack(new(big.Int).Mul(amount, big.NewInt(2)), prices, ticks, big.NewInt(90_000))
		assert.NoError(t, err)
		return ok(data)
	}
}

func newQuoteProvider(t *testing.T, b multicall.Batcher, policy batch.BatchPolicy) *QuoteProvider {
	exec := batch.New("quote", types.Mainnet, b)
	retry := batch.RetryPolicy{MaxRetries: 1, MinDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return NewQuoteProvider(types.Mainnet, mainnetContracts(t), exec, retry, policy)
}

func TestQuoteProvider_Quote(t *testing.T) {
	b := &stubBatcher{answer: doublingQuoter(t)}
	p := newQuoteProvider(t, b, batch.BatchPolicy{ChunkSize: 2, PerCallResourceLimit: 705_000, MinSuccessRate: 0.15})

	route := model.Route{Tokens: []common.Address{wethAddr, usdcAddr}, Fees: []model.FeeAmount{model.FeeLow}}
	reqs := []model.QuoteRequest{
		{Route: route, Amount: big.NewInt(100), Type: model.ExactIn},
		{Route: model.Route{Tokens: []common.Address{wethAddr}}, Amount: big.NewInt(1)},
		{Route: route, Amount: big.NewInt(13), Type: model.ExactIn},
		{Route: route, Amount: big.NewInt(7), Type: model.ExactIn},
	}

	quotes, err := p.Quote(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, quotes, 4)

	assert.True(t, quotes[0].OK())
	assert.Equal(t, int64(200), quotes[0].Amount.Int64())
	assert.Equal(t, []uint32{1}, quotes[0].InitializedTicksCrossed)
	assert.Equal(t, int64(90_000), quotes[0].GasEstimate.Int64())
	assert.Equal(t, uint64(18_000_000), quotes[0].BlockNumber)

	assert.ErrorIs(t, quotes[1].Err, ErrInvalidRoute, "Malformed routes should fail individually")
	assert.ErrorIs(t, quotes[2].Err, batch.ErrCallReverted, "Reverted quotes should fail individually")
	assert.Equal(t, int64(14), quotes[3].Amount.Int64())

	assert.Len(t, b.seen, 3, "Only encodable requests should be sent")
	for _, c := range b.seen {
		assert.Equal(t, mainnetContracts(t).QuoterV2, c.Target)
		assert.Equal(t, uint64(705_000), c.GasLimit, "Calls should carry the per-call gas limit")
	}
}

func TestQuoteProvider_UnderThreshold(t *testing.T) {
	b := &stubBatcher{answer: func(multicall.Call) multicall.Result { return reverted() }}
	p := newQuoteProvider(t, b, batch.DefaultBatchPolicy())

	route := model.Route{Tokens: []common.Address{wethAddr, usdcAddr}, Fees: []model.FeeAmount{model.FeeLow}}
	_, err := p.Fetch(context.Background(), model.QuoteRequest{Route: route, Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, provider.ErrBatchUnderThreshold)
}

func TestSubgraphProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640","feeTier":"500","liquidity":"100","token0":{"id":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},"token1":{"id":"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},"tvlETH":1000.5,"tvlUSD":2000000},
			{"id":"0x60594a405d53811d3bc4766596efd80fd545a270","feeTier":"500","liquidity":"50","token0":{"id":"0x6b175474e89094c44da98b954eedeac495271d0f"},"token1":{"id":"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},"tvlETH":10,"tvlUSD":20000}
		]`))
	}))
	defer srv.Close()

	p := NewSubgraphProvider(types.Mainnet, srv.URL, srv.Client())
	assert.Equal(t, srv.URL, p.URI())

	all, err := p.Fetch(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withUSDC, err := p.Fetch(context.Background(), usdcAddr)
	require.NoError(t, err)
	require.Len(t, withUSDC, 1)
	assert.Equal(t, "500", withUSDC[0].FeeTier)
	assert.InDelta(t, 1000.5, withUSDC[0].TVLETH, 1e-9)

	_, err = p.Fetch(context.Background(), common.HexToAddress("0x1234567890123456789012345678901234567890"))
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestSubgraphProvider_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSubgraphProvider(types.Mainnet, srv.URL+"/down", srv.Client()).Pools(context.Background())
	assert.ErrorIs(t, err, provider.ErrTransient)

	_, err = NewSubgraphProvider(types.Mainnet, srv.URL+"/missing", srv.Client()).Pools(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotFound)
}
