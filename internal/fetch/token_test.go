package fetch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

func TestDefaultTokenList_IndexesPerNetwork(t *testing.T) {
	mainnet := NewTokenListProvider(types.Mainnet, DefaultTokenList())
	polygon := NewTokenListProvider(types.Polygon, DefaultTokenList())

	tok, err := mainnet.Fetch(context.Background(), wethAddr)
	require.NoError(t, err)
	assert.Equal(t, "WETH", tok.Symbol)
	assert.Equal(t, uint8(18), tok.Decimals)
	assert.Equal(t, uint64(1), tok.ChainID)

	_, err = polygon.Fetch(context.Background(), wethAddr)
	assert.ErrorIs(t, err, provider.ErrNotFound, "Mainnet WETH should not resolve on Polygon")

	usdc, ok := mainnet.BySymbol("usdc")
	require.True(t, ok)
	assert.Equal(t, usdcAddr, usdc.Address)
	assert.Greater(t, mainnet.Len(), polygon.Len())
}

func TestTokenListProvider_DropsInvalidRecords(t *testing.T) {
	list := model.TokenList{Name: "test", Tokens: []model.TokenInfo{
		{ChainID: 1, Address: wethAddr.Hex(), Symbol: "WETH", Decimals: 18},
		{ChainID: 1, Address: "not-an-address", Symbol: "BAD", Decimals: 18},
		{ChainID: 1, Address: daiAddr.Hex(), Symbol: "", Decimals: 18},
	}}
	p := NewTokenListProvider(types.Mainnet, list)
	assert.Equal(t, 1, p.Len())

	_, err := p.Fetch(context.Background(), daiAddr)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestUnsupportedTokenList_Parses(t *testing.T) {
	list := UnsupportedTokenList()
	assert.Equal(t, "Unsupported Tokens", list.Name)
	assert.Equal(t, 0, NewTokenListProvider(types.Mainnet, list).Len())
}

func TestLoadTokenList_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"local","tokens":[{"chainId":10,"address":"0x4200000000000000000000000000000000000042","symbol":"OP","name":"Optimism","decimals":18}]}`), 0o600))

	list, err := LoadTokenList(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "local", list.Name)
	require.Len(t, list.Tokens, 1)
	assert.Equal(t, "OP", list.Tokens[0].Symbol)

	_, err = LoadTokenList(context.Background(), nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func erc20Answer(symbol []byte, decimals []byte, name []byte) func(multicall.Call) multicall.Result {
	return func(c multicall.Call) multicall.Result {
		switch {
		case bytes.Equal(c.CallData, symbolCall):
			if symbol == nil {
				return reverted()
			}
			return ok(symbol)
		case bytes.Equal(c.CallData, decimalsCall):
			if decimals == nil {
				return reverted()
			}
			return ok(decimals)
		case bytes.Equal(c.CallData, nameCall):
			if name == nil {
				return reverted()
			}
			return ok(name)
		}
		return reverted()
	}
}

func mustOutputs(t *testing.T, method string, bytes32 bool, v interface{}) []byte {
	t.Helper()
	a := erc20ABI
	if bytes32 {
		a = erc20Bytes32ABI
	}
	data, err := a.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return data
}

func TestOnChainTokenProvider_Fetch(t *testing.T) {
	b := &stubBatcher{answer: erc20Answer(
		mustOutputs(t, "symbol", false, "DAI"),
		mustOutputs(t, "decimals", false, uint8(18)),
		mustOutputs(t, "name", false, "Dai Stablecoin"),
	)}
	p := NewOnChainTokenProvider(types.Mainnet, b)

	tok, err := p.Fetch(context.Background(), daiAddr)
	require.NoError(t, err)
	assert.Equal(t, model.Token{ChainID: 1, Address: daiAddr, Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18}, tok)
	assert.Equal(t, 1, b.rounds, "Metadata should be read in a single round-trip")
}

func TestOnChainTokenProvider_Bytes32Symbol(t *testing.T) {
	var sym, name [32]byte
	copy(sym[:], "MKR")
	copy(name[:], "Maker")
	b := &stubBatcher{answer: erc20Answer(
		mustOutputs(t, "symbol", true, sym),
		mustOutputs(t, "decimals", false, uint8(18)),
		mustOutputs(t, "name", true, name),
	)}

	tok, err := NewOnChainTokenProvider(types.Mainnet, b).Fetch(context.Background(), common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"))
	require.NoError(t, err)
	assert.Equal(t, "MKR", tok.Symbol)
	assert.Equal(t, "Maker", tok.Name)
}

func TestOnChainTokenProvider_NotAToken(t *testing.T) {
	b := &stubBatcher{answer: erc20Answer(nil, nil, nil)}
	_, err := NewOnChainTokenProvider(types.Mainnet, b).Fetch(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, provider.ErrNotFound)

	empty := &stubBatcher{answer: func(multicall.Call) multicall.Result { return ok([]byte{}) }}
	_, err = NewOnChainTokenProvider(types.Mainnet, empty).Fetch(context.Background(), common.HexToAddress("0x02"))
	assert.ErrorIs(t, err, provider.ErrNotFound, "Calls to an account without code return empty data")
}

func TestOnChainTokenProvider_PropagatesBatchErrors(t *testing.T) {
	b := &stubBatcher{err: provider.Transient(assert.AnError)}
	_, err := NewOnChainTokenProvider(types.Mainnet, b).Fetch(context.Background(), daiAddr)
	assert.ErrorIs(t, err, provider.ErrTransient)
	assert.NotErrorIs(t, err, provider.ErrNotFound, "Transport failures must not trigger fallback")
}

func TestTokenFallbackChain(t *testing.T) {
	b := &stubBatcher{answer: erc20Answer(
		mustOutputs(t, "symbol", false, "NEW"),
		mustOutputs(t, "decimals", false, uint8(9)),
		mustOutputs(t, "name", false, "New Token"),
	)}
	chain := provider.NewFallback[common.Address, model.Token]("token",
		NewTokenListProvider(types.Mainnet, DefaultTokenList()),
		NewOnChainTokenProvider(types.Mainnet, b),
	)

	listed, err := chain.Fetch(context.Background(), wethAddr)
	require.NoError(t, err)
	assert.Equal(t, "WETH", listed.Symbol)
	assert.Zero(t, b.rounds, "Listed tokens should not hit the chain")

	unlisted, err := chain.Fetch(context.Background(), common.HexToAddress("0x1234567890123456789012345678901234567890"))
	require.NoError(t, err)
	assert.Equal(t, "NEW", unlisted.Symbol)
	assert.Equal(t, 1, b.rounds)
}
