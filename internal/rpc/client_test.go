package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/router-providers/internal/circuitbreaker"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

type fakeBackend struct {
	calls  atomic.Int64
	err    error
	out    []byte
	closed atomic.Bool
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	f.calls.Add(1)
	return f.out, f.err
}

func (f *fakeBackend) FeeHistory(context.Context, uint64, *big.Int, []float64) (*ethereum.FeeHistory, error) {
	f.calls.Add(1)
	return &ethereum.FeeHistory{}, f.err
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.calls.Add(1)
	return big.NewInt(1), f.err
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.calls.Add(1)
	return 100, f.err
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	f.calls.Add(1)
	return big.NewInt(1), f.err
}

func (f *fakeBackend) Close() { f.closed.Store(true) }

type rpcCodeError struct{ code int }

func (e rpcCodeError) Error() string  { return fmt.Sprintf("rpc error %d", e.code) }
func (e rpcCodeError) ErrorCode() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{name: "https", endpoint: "https://mainnet.infura.io/v3/key"},
		{name: "websocket", endpoint: "wss://node.example.org"},
		{name: "missing", endpoint: "", wantErr: true},
		{name: "no scheme", endpoint: "mainnet.infura.io", wantErr: true},
		{name: "bad scheme", endpoint: "ftp://node.example.org", wantErr: true},
		{name: "unparseable", endpoint: "http://[::1", wantErr: true},
		{name: "no host", endpoint: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(types.Mainnet, tt.endpoint)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, provider.ErrConfiguration)
			var cfgErr *provider.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, types.Mainnet, cfgErr.Network)
		})
	}
}

func TestDial_RejectsMalformedEndpoint(t *testing.T) {
	_, err := Dial(context.Background(), types.Polygon, "not a url", Options{})
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		timeout   bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, transient: true, timeout: true},
		{name: "canceled", err: context.Canceled},
		{name: "net timeout", err: timeoutErr{}, transient: true},
		{name: "http 503", err: gethrpc.HTTPError{StatusCode: http.StatusServiceUnavailable}, transient: true},
		{name: "http 429", err: gethrpc.HTTPError{StatusCode: http.StatusTooManyRequests}, transient: true},
		{name: "http 400", err: gethrpc.HTTPError{StatusCode: http.StatusBadRequest}},
		{name: "limit exceeded code", err: rpcCodeError{code: codeLimitExceeded}, transient: true},
		{name: "out of gas", err: errors.New("execution reverted: out of gas"), transient: true},
		{name: "revert", err: errors.New("execution reverted")},
		{name: "unavailable", err: provider.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.err, "Classification must keep the original cause")
			assert.Equal(t, tt.transient, provider.IsTransient(got))
			assert.Equal(t, tt.timeout, errors.Is(got, provider.ErrTimeout))
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestClient_PassesThroughAndRecordsSuccess(t *testing.T) {
	backend := &fakeBackend{out: []byte{0x01}}
	c := NewClient(types.Mainnet, "https://node", backend, Options{})

	out, err := c.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, out)

	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)

	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
	assert.Equal(t, types.Mainnet, c.Network())
	assert.Equal(t, "https://node", c.Endpoint())
}

func TestClient_TransportFailuresOpenBreaker(t *testing.T) {
	backend := &fakeBackend{err: gethrpc.HTTPError{StatusCode: http.StatusBadGateway}}
	c := NewClient(types.ArbitrumOne, "https://node", backend, Options{BreakerFailures: 2, BreakerReset: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := c.SuggestGasPrice(context.Background())
		assert.ErrorIs(t, err, provider.ErrTransient)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	_, err := c.ChainID(context.Background())
	assert.ErrorIs(t, err, provider.ErrUnavailable, "Open breaker should surface Unavailable")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int64(2), backend.calls.Load(), "Open breaker must not reach the backend")
}

func TestClient_RevertsDoNotTripBreaker(t *testing.T) {
	backend := &fakeBackend{err: errors.New("execution reverted")}
	c := NewClient(types.Mainnet, "https://node", backend, Options{BreakerFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := c.CallContract(context.Background(), ethereum.CallMsg{}, nil)
		require.Error(t, err)
		assert.False(t, provider.IsTransient(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
}

func TestClient_LimiterRespectsDeadline(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClient(types.Mainnet, "https://node", backend, Options{RequestsPerSecond: 0.001, Burst: 1})

	_, err := c.BlockNumber(context.Background())
	require.NoError(t, err, "First call should consume the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.BlockNumber(ctx)
	require.Error(t, err, "Second call should not get a token before the deadline")
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestClient_CallerDeadlinesDoNotTripBreaker(t *testing.T) {
	backend := &fakeBackend{err: &url.Error{Op: "Post", URL: "https://node", Err: context.DeadlineExceeded}}
	c := NewClient(types.Mainnet, "https://node", backend, Options{BreakerFailures: 2, BreakerReset: time.Hour})

	for i := 0; i < 5; i++ {
		_, err := c.BlockNumber(context.Background())
		assert.ErrorIs(t, err, provider.ErrTimeout)
		assert.True(t, provider.IsTransient(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState(), "Deadlines are the caller's, not the endpoint's")
}

func TestClient_SlowEndpointWithShortDeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x10"}`, req.ID)
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), types.Mainnet, srv.URL, Options{BreakerFailures: 2, BreakerReset: time.Hour, RequestsPerSecond: 1000, Burst: 100})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := c.BlockNumber(ctx)
		cancel()
		require.Error(t, err)
		assert.NotErrorIs(t, err, provider.ErrUnavailable)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())

	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err, "A caller with time to wait should still reach the endpoint")
	assert.Equal(t, uint64(16), n)
}

func TestClient_Close(t *testing.T) {
	backend := &fakeBackend{}
	NewClient(types.Mainnet, "https://node", backend, Options{}).Close()
	assert.True(t, backend.closed.Load())
}
