package fetch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
	"github.com/yourorg/router-providers/internal/validation"
)

//go:embed tokenlists/default.tokenlist.json
var defaultTokenListJSON []byte

//go:embed tokenlists/unsupported.tokenlist.json
var unsupportedTokenListJSON []byte

// ParseTokenList decodes a token list document
func ParseTokenList(data []byte) (model.TokenList, error) {
	var list model.TokenList
	if err := json.Unmarshal(data, &list); err != nil {
		return model.TokenList{}, fmt.Errorf("parsing token list: %w", err)
	}
	return list, nil
}

// DefaultTokenList returns the built-in curated token list
func DefaultTokenList() model.TokenList {
	list, err := ParseTokenList(defaultTokenListJSON)
	if err != nil {
		panic(err)
	}
	return list
}

// UnsupportedTokenList returns the built-in list of blocked tokens
func UnsupportedTokenList() model.TokenList {
	list, err := ParseTokenList(unsupportedTokenListJSON)
	if err != nil {
		panic(err)
	}
	return list
}

// LoadTokenList reads a token list from an http(s) URL or a local file
func LoadTokenList(ctx context.Context, client *http.Client, source string) (model.TokenList, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = StandardClient()
		}
		var list model.TokenList
		if err := getJSON(ctx, client, source, &list); err != nil {
			return model.TokenList{}, err
		}
		return list, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return model.TokenList{}, fmt.Errorf("reading token list: %w", err)
	}
	return ParseTokenList(data)
}

// TokenListProvider resolves tokens of one network from a static token list
type TokenListProvider struct {
	network   types.NetworkID
	name      string
	byAddress map[common.Address]model.Token
	bySymbol  map[string]model.Token
}

var _ provider.Provider[common.Address, model.Token] = (*TokenListProvider)(nil)

// NewTokenListProvider indexes the valid records of list that belong to network
func NewTokenListProvider(network types.NetworkID, list model.TokenList) *TokenListProvider {
	opts := validation.DefaultValidationOptions()
	opts.ChainID = uint64(network)
	records := validation.FilterInvalidConcurrently(list.Tokens, opts)

	p := &TokenListProvider{
		network:   network,
		name:      list.Name,
		byAddress: make(map[common.Address]model.Token, len(records)),
		bySymbol:  make(map[string]model.Token, len(records)),
	}
	for _, r := range records {
		tok := validation.ToToken(r)
		p.byAddress[tok.Address] = tok
		sym := strings.ToUpper(tok.Symbol)
		if _, exists := p.bySymbol[sym]; !exists {
			p.bySymbol[sym] = tok
		}
	}

	logrus.WithFields(logrus.Fields{
		"network": network.String(),
		"list":    list.Name,
		"tokens":  len(p.byAddress),
		"dropped": len(list.Tokens) - len(records),
	}).Debug("Token list indexed")
	return p
}

// Fetch returns the listed token at address
func (p *TokenListProvider) Fetch(_ context.Context, address common.Address) (model.Token, error) {
	if tok, ok := p.byAddress[address]; ok {
		return tok, nil
	}
	return model.Token{}, fmt.Errorf("token %s not in list %q on %s: %w", address.Hex(), p.name, p.network, provider.ErrNotFound)
}

// BySymbol looks a token up by symbol, case-insensitively
func (p *TokenListProvider) BySymbol(symbol string) (model.Token, bool) {
	tok, ok := p.bySymbol[strings.ToUpper(symbol)]
	return tok, ok
}

// Len returns the number of tokens indexed for the network
func (p *TokenListProvider) Len() int {
	return len(p.byAddress)
}
