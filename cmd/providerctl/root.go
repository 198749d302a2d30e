package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/router-providers/internal/config"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/registry"
	"github.com/yourorg/router-providers/internal/types"
)

type rootOptions struct {
	configPath string
	output     string
	verbose    bool
	timeout    time.Duration

	// extra registry options, used by tests to inject a dialer
	registryOpts []registry.Option
}

func newRootCmd(extra ...registry.Option) *cobra.Command {
	opts := &rootOptions{registryOpts: extra}

	cmd := &cobra.Command{
		Use:   "providerctl",
		Short: "Inspect and check the per-network routing providers",
		Long: `providerctl lists the networks with known contract deployments and checks
that the configured networks build and answer basic queries.

Example:
  providerctl networks
  CHAIN_MAINNET_RPC_ENDPOINT=https://... providerctl check --network mainnet`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level := logrus.WarnLevel
			if opts.verbose {
				level = logrus.DebugLevel
			}
			logrus.SetLevel(level)
			switch opts.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q", opts.output)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults to $CONFIG_FILE)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")

	cmd.AddCommand(newNetworksCmd(opts), newCheckCmd(opts))
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFrom(o.configPath)
	}
	return config.Load()
}

func (o *rootOptions) writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type networkRow struct {
	Name        string `json:"name"`
	ChainID     uint64 `json:"chainId"`
	Multicall   string `json:"multicall"`
	QuoterV2    string `json:"quoterV2"`
	EndpointEnv string `json:"endpointEnv"`
	Configured  bool   `json:"configured"`
}

func newNetworksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List supported networks and their contract addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := make([]networkRow, 0)
			for _, n := range types.SupportedNetworks() {
				c, _ := types.ContractsFor(n)
				endpoint, _ := config.GetEnv(config.EndpointEnvKey(n))
				configured := strings.TrimSpace(endpoint) != ""
				rows = append(rows, networkRow{
					Name:        n.String(),
					ChainID:     uint64(n),
					Multicall:   c.Multicall.Hex(),
					QuoterV2:    c.QuoterV2.Hex(),
					EndpointEnv: config.EndpointEnvKey(n),
					Configured:  configured,
				})
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return opts.writeJSON(out, rows)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NETWORK\tCHAIN ID\tMULTICALL\tENDPOINT VARIABLE\tCONFIGURED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\n", r.Name, r.ChainID, r.Multicall, r.EndpointEnv, r.Configured)
			}
			return tw.Flush()
		},
	}
}

type checkResult struct {
	Network     string `json:"network"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasPriceWei string `json:"gasPriceWei,omitempty"`
	Token       string `json:"token,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var networks []string
	var symbol string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Build the configured networks and query each one",
		Long: `check builds the provider registry from the configuration and, for every
network, reads the latest block, the current gas price and one token from the token list.
It exits non-zero when the build or any query fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if len(networks) > 0 {
				parsed, err := config.ParseNetworks(strings.Join(networks, ","))
				if err != nil {
					return err
				}
				cfg.Networks = parsed
				if cfg.Endpoints == nil {
					cfg.Endpoints = map[types.NetworkID]string{}
				}
				for _, n := range parsed {
					if _, ok := cfg.Endpoints[n]; ok {
						continue
					}
					if endpoint, ok := config.GetEnv(config.EndpointEnvKey(n)); ok {
						cfg.Endpoints[n] = strings.TrimSpace(endpoint)
					}
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			regOpts, err := registry.OptionsFromConfig(ctx, cfg, metrics.Log{})
			if err != nil {
				return err
			}
			bundles, err := registry.New(append(regOpts, opts.registryOpts...)...).Build(ctx, cfg.Networks, cfg.Endpoints)
			if err != nil {
				return err
			}
			defer bundles.Close()

			results := make([]checkResult, 0, len(bundles))
			failed := 0
			for _, n := range bundles.Networks() {
				res := check(ctx, bundles[n], symbol)
				if res.Error != "" {
					failed++
				}
				results = append(results, res)
			}

			if err := printResults(cmd.OutOrStdout(), opts, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d networks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&networks, "network", "n", nil, "networks to check (defaults to SUPPORTED_CHAINS)")
	cmd.Flags().StringVar(&symbol, "symbol", "WETH", "token list symbol to resolve on each network")
	return cmd
}

func check(ctx context.Context, b *registry.Bundle, symbol string) checkResult {
	res := checkResult{Network: b.Network.String()}

	block, err := b.Executor.BlockNumber(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("block number: %v", err)
		return res
	}
	res.BlockNumber = block

	price, err := b.GasPriceProvider.Fetch(ctx, fetch.LatestGasPrice)
	if err != nil {
		res.Error = fmt.Sprintf("gas price: %v", err)
		return res
	}
	res.GasPriceWei = price.Wei.String()

	if listed, ok := b.TokenList.BySymbol(symbol); ok {
		tok, err := b.TokenProvider.Fetch(ctx, listed.Address)
		if err != nil {
			res.Error = fmt.Sprintf("token %s: %v", symbol, err)
			return res
		}
		res.Token = fmt.Sprintf("%s %s (%d decimals)", tok.Symbol, tok.Address.Hex(), tok.Decimals)
	}
	return res
}

func printResults(w io.Writer, opts *rootOptions, results []checkResult) error {
	if opts.output == "json" {
		return opts.writeJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tBLOCK\tGAS PRICE (WEI)\tTOKEN\tSTATUS")
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Network, r.BlockNumber, r.GasPriceWei, r.Token, status)
	}
	return tw.Flush()
}
