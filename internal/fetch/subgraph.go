package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

// SubgraphProvider serves historical pool discovery from a JSON document of
// subgraph pools published at a fixed URI
type SubgraphProvider struct {
	network    types.NetworkID
	uri        string
	httpClient *http.Client
}

var _ provider.Provider[common.Address, []model.SubgraphPool] = (*SubgraphProvider)(nil)

// NewSubgraphProvider reads pools from uri. A nil client uses a retrying client.
func NewSubgraphProvider(network types.NetworkID, uri string, client *http.Client) *SubgraphProvider {
	if client == nil {
		client = StandardClient()
	}
	return &SubgraphProvider{network: network, uri: uri, httpClient: client}
}

// URI returns the pool document location
func (p *SubgraphProvider) URI() string {
	return p.uri
}

// Pools returns every pool in the document
func (p *SubgraphProvider) Pools(ctx context.Context) ([]model.SubgraphPool, error) {
	var pools []model.SubgraphPool
	if err := getJSON(ctx, p.httpClient, p.uri, &pools); err != nil {
		return nil, fmt.Errorf("subgraph pools on %s: %w", p.network, err)
	}
	logrus.WithFields(logrus.Fields{
		"network": p.network.String(),
		"pools":   len(pools),
	}).Debug("Fetched subgraph pools")
	return pools, nil
}

// Fetch returns the pools that contain token. The zero address selects every pool.
func (p *SubgraphProvider) Fetch(ctx context.Context, token common.Address) ([]model.SubgraphPool, error) {
	pools, err := p.Pools(ctx)
	if err != nil {
		return nil, err
	}
	if token == (common.Address{}) {
		return pools, nil
	}

	id := strings.ToLower(token.Hex())
	matching := make([]model.SubgraphPool, 0)
	for _, pool := range pools {
		if strings.ToLower(pool.Token0.ID) == id || strings.ToLower(pool.Token1.ID) == id {
			matching = append(matching, pool)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("no subgraph pools for %s on %s: %w", token.Hex(), p.network, provider.ErrNotFound)
	}
	return matching, nil
}
