package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yourorg/router-providers/internal/config"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/model"
)

// OptionsFromConfig translates the application configuration into registry options.
// Token lists with a configured source are loaded here so a bad source fails early.
func OptionsFromConfig(ctx context.Context, cfg config.Config, sink metrics.Sink) ([]Option, error) {
	client := fetch.StandardClient()

	tokens, err := loadList(ctx, client, cfg.TokenListSource, fetch.DefaultTokenList)
	if err != nil {
		return nil, fmt.Errorf("token list: %w", err)
	}
	blocked, err := loadList(ctx, client, cfg.BlockedTokenListSource, fetch.UnsupportedTokenList)
	if err != nil {
		return nil, fmt.Errorf("blocked token list: %w", err)
	}

	opts := []Option{
		WithMetrics(sink),
		WithRPCOptions(cfg.RPC.Options(sink)),
		WithQuotePolicies(cfg.Retry, cfg.Batch),
		WithCacheTTLs(CacheTTLs{Token: cfg.Cache.TokenTTL, Pool: cfg.Cache.PoolTTL, GasPrice: cfg.Cache.GasPriceTTL}),
		WithTokenLists(tokens, blocked),
		WithSubgraph(cfg.SubgraphURI, client),
		WithMulticallGas(cfg.MulticallGasPerCall),
	}
	if cfg.VerifyChainID {
		opts = append(opts, WithChainIDVerification())
	}
	return opts, nil
}

func loadList(ctx context.Context, client *http.Client, source string, fallback func() model.TokenList) (model.TokenList, error) {
	if source == "" {
		return fallback(), nil
	}
	return fetch.LoadTokenList(ctx, client, source)
}
