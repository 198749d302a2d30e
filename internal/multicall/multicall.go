// Package multicall batches independent eth_call reads into a single call to the
// UniswapInterfaceMulticall contract. Every inner call runs with its own gas limit
// and reports success, gas used and return data individually.
package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/router-providers/internal/rpc"
)

// DefaultGasPerCall is the gas limit given to an inner call that does not set one
const DefaultGasPerCall uint64 = 375_000

const multicallABI = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"uint256","name":"gasLimit","type":"uint256"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct UniswapInterfaceMulticall.Call[]","name":"calls","type":"tuple[]"}],"name":"multicall","outputs":[{"internalType":"uint256","name":"blockNumber","type":"uint256"},{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"uint256","name":"gasUsed","type":"uint256"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct UniswapInterfaceMulticall.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"nonpayable","type":"function"}]`

// ABI is the parsed UniswapInterfaceMulticall interface
var ABI = MustParseABI(multicallABI)

// MustParseABI parses a JSON ABI definition and panics on malformed input.
// It is meant for package-level ABI constants only.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("multicall: invalid ABI: %v", err))
	}
	return parsed
}

// Call is one read to batch
type Call struct {
	Target   common.Address
	CallData []byte
	// GasLimit for this call; zero uses the batcher default
	GasLimit uint64
}

// Result is the outcome of one inner call
type Result struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
}

// Response is the outcome of one multicall round-trip
type Response struct {
	BlockNumber uint64
	Results     []Result
}

// CallOptions tunes a single round-trip
type CallOptions struct {
	// GasLimit caps the outer call; zero leaves it to the node
	GasLimit uint64
	// BlockNumber pins the read; nil reads latest
	BlockNumber *big.Int
}

// Batcher executes a batch of calls in one round-trip
type Batcher interface {
	Multicall(ctx context.Context, calls []Call, opts CallOptions) (*Response, error)
}

// ErrEmptyResponse is returned when the multicall contract produced no data,
// typically because it is not deployed at the configured address
var ErrEmptyResponse = errors.New("multicall returned no data")

// Client is a Batcher backed by an RPC executor
type Client struct {
	executor   rpc.Executor
	address    common.Address
	gasPerCall uint64
}

var _ Batcher = (*Client)(nil)

// New binds a batcher to the multicall contract at address. A gasPerCall of zero
// uses DefaultGasPerCall.
func New(executor rpc.Executor, address common.Address, gasPerCall uint64) *Client {
	if gasPerCall == 0 {
		gasPerCall = DefaultGasPerCall
	}
	return &Client{executor: executor, address: address, gasPerCall: gasPerCall}
}

// GasPerCall returns the default inner call gas limit
func (c *Client) GasPerCall() uint64 {
	return c.gasPerCall
}

// Address returns the multicall contract address
func (c *Client) Address() common.Address {
	return c.address
}

type rawCall struct {
	Target   common.Address
	GasLimit *big.Int
	CallData []byte
}

type rawResult struct {
	Success    bool     `json:"success"`
	GasUsed    *big.Int `json:"gasUsed"`
	ReturnData []byte   `json:"returnData"`
}

// Multicall implements Batcher
func (c *Client) Multicall(ctx context.Context, calls []Call, opts CallOptions) (*Response, error) {
	if len(calls) == 0 {
		return &Response{}, nil
	}

	input, err := EncodeCalls(calls, c.gasPerCall)
	if err != nil {
		return nil, err
	}

	out, err := c.executor.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Gas:  opts.GasLimit,
		Data: input,
	}, opts.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("multicall of %d calls: %w", len(calls), rpc.Classify(err))
	}

	resp, err := DecodeResponse(out)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(resp.Results), len(calls))
	}
	return resp, nil
}

// EncodeCalls packs calls into multicall input data
func EncodeCalls(calls []Call, defaultGas uint64) ([]byte, error) {
	raw := make([]rawCall, len(calls))
	for i, call := range calls {
		gas := call.GasLimit
		if gas == 0 {
			gas = defaultGas
		}
		raw[i] = rawCall{Target: call.Target, GasLimit: new(big.Int).SetUint64(gas), CallData: call.CallData}
	}
	input, err := ABI.Pack("multicall", raw)
	if err != nil {
		return nil, fmt.Errorf("packing multicall: %w", err)
	}
	return input, nil
}

// DecodeResponse unpacks multicall output data
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}
	values, err := ABI.Unpack("multicall", data)
	if err != nil {
		return nil, fmt.Errorf("unpacking multicall: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unpacking multicall: expected 2 values, got %d", len(values))
	}

	block, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpacking multicall: unexpected block number type %T", values[0])
	}
	raw := *abi.ConvertType(values[1], new([]rawResult)).(*[]rawResult)

	resp := &Response{BlockNumber: block.Uint64(), Results: make([]Result, len(raw))}
	for i, r := range raw {
		var gasUsed uint64
		if r.GasUsed != nil {
			gasUsed = r.GasUsed.Uint64()
		}
		resp.Results[i] = Result{Success: r.Success, GasUsed: gasUsed, ReturnData: r.ReturnData}
	}
	return resp, nil
}

// EncodeResponse packs a response the way the contract returns it. It is the
// inverse of DecodeResponse and is used to build canned node replies.
func EncodeResponse(resp Response) ([]byte, error) {
	raw := make([]rawResult, len(resp.Results))
	for i, r := range resp.Results {
		data := r.ReturnData
		if data == nil {
			data = []byte{}
		}
		raw[i] = rawResult{Success: r.Success, GasUsed: new(big.Int).SetUint64(r.GasUsed), ReturnData: data}
	}
	return ABI.Methods["multicall"].Outputs.Pack(new(big.Int).SetUint64(resp.BlockNumber), raw)
}

// DecodeCalls unpacks multicall input data back into calls
func DecodeCalls(input []byte) ([]Call, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("multicall input too short")
	}
	method, err := ABI.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("unpacking multicall input: %w", err)
	}
	raw := *abi.ConvertType(values[0], new([]rawCall)).(*[]rawCall)

	calls := make([]Call, len(raw))
	for i, r := range raw {
		calls[i] = Call{Target: r.Target, CallData: r.CallData, GasLimit: r.GasLimit.Uint64()}
	}
	return calls, nil
}
