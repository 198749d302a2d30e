package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/router-providers/internal/types"
)

// ChainConfig is one entry of the chains section of a config file
type ChainConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	RPCEndpoint string `yaml:"rpc_endpoint"`
}

// fileConfig is the on-disk layout. JSON documents parse as well since JSON is valid YAML.
type fileConfig struct {
	Config `yaml:",inline"`
	Chains map[string]ChainConfig `yaml:"chains"`
}

// mergeFile overlays the settings present in path onto c
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.mergeYAML(data)
}

func (c *Config) mergeYAML(data []byte) error {
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	*c = fc.Config

	if len(fc.Chains) == 0 {
		return nil
	}

	names := make([]string, 0, len(fc.Chains))
	for name := range fc.Chains {
		names = append(names, name)
	}
	sort.Strings(names)

	networks := make([]types.NetworkID, 0, len(names))
	endpoints := make(map[types.NetworkID]string, len(names))
	for _, name := range names {
		chain := fc.Chains[name]
		if chain.Enabled != nil && !*chain.Enabled {
			continue
		}
		n, err := types.ParseNetwork(name)
		if err != nil {
			return fmt.Errorf("chains.%s: %w", name, err)
		}
		networks = append(networks, n)
		if endpoint := strings.TrimSpace(chain.RPCEndpoint); endpoint != "" {
			endpoints[n] = endpoint
		}
	}
	c.Networks = networks
	c.Endpoints = endpoints
	return nil
}
