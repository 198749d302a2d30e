package fetch

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/router-providers/internal/multicall"
)

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	daiAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

// stubBatcher answers every inner call through answer
type stubBatcher struct {
	mu     sync.Mutex
	answer func(call multicall.Call) multicall.Result
	err    error
	rounds int
	seen   []multicall.Call
}

func (b *stubBatcher) Multicall(_ context.Context, calls []multicall.Call, _ multicall.CallOptions) (*multicall.Response, error) {
	b.mu.Lock()
	b.rounds++
	b.seen = append(b.seen, calls...)
	b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	resp := &multicall.Response{BlockNumber: 18_000_000, Results: make([]multicall.Result, len(calls))}
	for i, c := range calls {
		resp.Results[i] = b.answer(c)
	}
	return resp, nil
}

// stubExecutor serves canned gas data
type stubExecutor struct {
	history  *ethereum.FeeHistory
	feeErr   error
	gasPrice *big.Int
	gasErr   error
}

func (e *stubExecutor) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (e *stubExecutor) FeeHistory(context.Context, uint64, *big.Int, []float64) (*ethereum.FeeHistory, error) {
	return e.history, e.feeErr
}

func (e *stubExecutor) SuggestGasPrice(context.Context) (*big.Int, error) {
	return e.gasPrice, e.gasErr
}

func (e *stubExecutor) BlockNumber(context.Context) (uint64, error) { return 18_000_000, nil }
func (e *stubExecutor) ChainID(context.Context) (*big.Int, error)   { return big.NewInt(1), nil }
func (e *stubExecutor) Close()                                      {}

func ok(data []byte) multicall.Result {
	return multicall.Result{Success: true, GasUsed: 30_000, ReturnData: data}
}

func reverted() multicall.Result {
	return multicall.Result{Success: false, ReturnData: []byte{}}
}
