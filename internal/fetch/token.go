package fetch

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

var (
	symbolCall   = mustPack(erc20ABI, "symbol")
	decimalsCall = mustPack(erc20ABI, "decimals")
	nameCall     = mustPack(erc20ABI, "name")
)

// OnChainTokenProvider reads ERC-20 metadata straight from the token contract
type OnChainTokenProvider struct {
	network types.NetworkID
	batcher multicall.Batcher
}

var _ provider.Provider[common.Address, model.Token] = (*OnChainTokenProvider)(nil)

// NewOnChainTokenProvider reads token metadata through batcher
func NewOnChainTokenProvider(network types.NetworkID, batcher multicall.Batcher) *OnChainTokenProvider {
	return &OnChainTokenProvider{network: network, batcher: batcher}
}

// Fetch reads symbol, decimals and name in one round-trip. An address that
// does not answer decimals is not a token and yields ErrNotFound.
func (p *OnChainTokenProvider) Fetch(ctx context.Context, address common.Address) (model.Token, error) {
	resp, err := p.batcher.Multicall(ctx, []multicall.Call{
		{Target: address, CallData: symbolCall},
		{Target: address, CallData: decimalsCall},
		{Target: address, CallData: nameCall},
	}, multicall.CallOptions{})
	if err != nil {
		return model.Token{}, fmt.Errorf("reading token %s on %s: %w", address.Hex(), p.network, err)
	}
	if len(resp.Results) != 3 {
		return model.Token{}, fmt.Errorf("reading token %s on %s: got %d results", address.Hex(), p.network, len(resp.Results))
	}

	symbolRes, decimalsRes, nameRes := resp.Results[0], resp.Results[1], resp.Results[2]
	if !decimalsRes.Success || len(decimalsRes.ReturnData) == 0 {
		return model.Token{}, fmt.Errorf("token %s on %s has no decimals: %w", address.Hex(), p.network, provider.ErrNotFound)
	}
	out, err := erc20ABI.Unpack("decimals", decimalsRes.ReturnData)
	if err != nil || len(out) != 1 {
		return model.Token{}, fmt.Errorf("token %s on %s returned malformed decimals: %w", address.Hex(), p.network, provider.ErrNotFound)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return model.Token{}, fmt.Errorf("token %s on %s: unexpected decimals type %T", address.Hex(), p.network, out[0])
	}

	tok := model.Token{ChainID: uint64(p.network), Address: address, Decimals: decimals}
	if symbolRes.Success {
		if tok.Symbol, err = unpackString("symbol", symbolRes.ReturnData); err != nil {
			logrus.WithField("token", address.Hex()).Debugf("Unreadable symbol: %v", err)
		}
	}
	if nameRes.Success {
		if tok.Name, err = unpackString("name", nameRes.ReturnData); err != nil {
			logrus.WithField("token", address.Hex()).Debugf("Unreadable name: %v", err)
		}
	}
	if tok.Symbol == "" {
		tok.Symbol = "UNKNOWN"
	}
	return tok, nil
}
