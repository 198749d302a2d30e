// Package model defines the core data structures handed to the routing engine.
package model

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the resolved metadata of an ERC-20 token on one network.
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name,omitempty"`
	Decimals uint8          `json:"decimals"`
	LogoURI  string         `json:"logoURI,omitempty"`
}

// TokenList is a token list in the Uniswap token-lists JSON schema
type TokenList struct {
	Name      string      `json:"name"`
	Timestamp string      `json:"timestamp,omitempty"`
	Tokens    []TokenInfo `json:"tokens"`
}

// TokenInfo is a single raw token list record
type TokenInfo struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// FeeAmount is a Uniswap V3 fee tier in hundredths of a basis point
type FeeAmount uint32

// Uniswap V3 fee tiers
const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

// PoolKey identifies a V3 pool by its token pair and fee tier.
// TokenA and TokenB may be given in any order.
type PoolKey struct {
	TokenA common.Address
	TokenB common.Address
	Fee    FeeAmount
}

// Sorted returns the pair ordered the way the factory orders pool tokens
func (k PoolKey) Sorted() (token0, token1 common.Address) {
	if bytes.Compare(k.TokenA.Bytes(), k.TokenB.Bytes()) < 0 {
		return k.TokenA, k.TokenB
	}
	return k.TokenB, k.TokenA
}

// Normalized returns the key with its tokens in factory order, so that both
// orderings of a pair compare equal
func (k PoolKey) Normalized() PoolKey {
	token0, token1 := k.Sorted()
	return PoolKey{TokenA: token0, TokenB: token1, Fee: k.Fee}
}

// Pool is the on-chain state of a V3 pool at the time it was read
type Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Fee          FeeAmount      `json:"fee"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Tick         int64          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	BlockNumber  uint64         `json:"blockNumber"`
}

// GasPrice is a gas price estimate in wei
type GasPrice struct {
	Wei         *big.Int  `json:"gasPriceWei"`
	BaseFee     *big.Int  `json:"baseFeeWei,omitempty"`
	PriorityFee *big.Int  `json:"priorityFeeWei,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// TradeType distinguishes exact-input from exact-output quotes
type TradeType int

// Trade types
const (
	ExactIn TradeType = iota
	ExactOut
)

// Route is a V3 swap path: Tokens has one more element than Fees
type Route struct {
	Tokens []common.Address
	Fees   []FeeAmount
}

// Hops returns the number of pools the route crosses
func (r Route) Hops() int {
	return len(r.Fees)
}

// QuoteRequest asks for a quote of Amount along Route
type QuoteRequest struct {
	Route  Route
	Amount *big.Int
	Type   TradeType
}

// Quote is the result of a single on-chain quote. Err is set when this
// particular quote failed while the batch as a whole succeeded.
type Quote struct {
	Request                 QuoteRequest
	Amount                  *big.Int
	SqrtPriceX96AfterList   []*big.Int
	InitializedTicksCrossed []uint32
	GasEstimate             *big.Int
	BlockNumber             uint64
	Err                     error
}

// OK reports whether the quote produced an amount
func (q Quote) OK() bool {
	return q.Err == nil && q.Amount != nil
}

// SubgraphPool is a pool record from the historical pool-discovery data source
type SubgraphPool struct {
	ID        string  `json:"id"`
	FeeTier   string  `json:"feeTier"`
	Liquidity string  `json:"liquidity"`
	Token0    SubRef  `json:"token0"`
	Token1    SubRef  `json:"token1"`
	TVLETH    float64 `json:"tvlETH"`
	TVLUSD    float64 `json:"tvlUSD"`
}

// SubRef references a token by address inside a SubgraphPool
type SubRef struct {
	ID string `json:"id"`
}
