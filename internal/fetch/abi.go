package fetch

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/yourorg/router-providers/internal/multicall"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// some early tokens (MKR, SAI) return bytes32 instead of string
const erc20Bytes32ABIJSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

const poolABIJSON = `[
{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

const quoterV2ABIJSON = `[
{"inputs":[{"internalType":"bytes","name":"path","type":"bytes"},{"internalType":"uint256","name":"amountIn","type":"uint256"}],"name":"quoteExactInput","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160[]","name":"sqrtPriceX96AfterList","type":"uint160[]"},{"internalType":"uint32[]","name":"initializedTicksCrossedList","type":"uint32[]"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"bytes","name":"path","type":"bytes"},{"internalType":"uint256","name":"amountOut","type":"uint256"}],"name":"quoteExactOutput","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160[]","name":"sqrtPriceX96AfterList","type":"uint160[]"},{"internalType":"uint32[]","name":"initializedTicksCrossedList","type":"uint32[]"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI        = multicall.MustParseABI(erc20ABIJSON)
	erc20Bytes32ABI = multicall.MustParseABI(erc20Bytes32ABIJSON)
	poolABI         = multicall.MustParseABI(poolABIJSON)
	quoterV2ABI     = multicall.MustParseABI(quoterV2ABIJSON)
)

func mustPack(a abi.ABI, method string, args ...interface{}) []byte {
	data, err := a.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("packing %s: %v", method, err))
	}
	return data
}

// unpackString decodes a string return value, falling back to bytes32
func unpackString(method string, data []byte) (string, error) {
	if out, err := erc20ABI.Unpack(method, data); err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok {
			return s, nil
		}
	}
	out, err := erc20Bytes32ABI.Unpack(method, data)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", method, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("decoding %s: expected 1 value, got %d", method, len(out))
	}
	b, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("decoding %s: unexpected type %T", method, out[0])
	}
	return string(bytes.TrimRight(b[:], "\x00")), nil
}

func unpackBig(a abi.ABI, method string, data []byte, index int) (*big.Int, error) {
	out, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	if len(out) <= index {
		return nil, fmt.Errorf("decoding %s: missing value %d", method, index)
	}
	v, ok := out[index].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding %s: unexpected type %T", method, out[index])
	}
	return v, nil
}
