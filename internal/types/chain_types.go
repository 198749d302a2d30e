// Package types contains shared type definitions used across multiple packages
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkID identifies a supported blockchain network by its EIP-155 chain id
type NetworkID uint64

// Supported blockchain networks
const (
	Mainnet       NetworkID = 1
	Goerli        NetworkID = 5
	Optimism      NetworkID = 10
	Polygon       NetworkID = 137
	PolygonMumbai NetworkID = 80001
	ArbitrumOne   NetworkID = 42161
	Celo          NetworkID = 42220
	Base          NetworkID = 8453
)

var networkNames = map[NetworkID]string{
	Mainnet:       "mainnet",
	Goerli:        "goerli",
	Optimism:      "optimism",
	Polygon:       "polygon",
	PolygonMumbai: "polygon-mumbai",
	ArbitrumOne:   "arbitrum",
	Celo:          "celo",
	Base:          "base",
}

// String returns the lower-case network name, or the numeric id for unknown networks
func (n NetworkID) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return strconv.FormatUint(uint64(n), 10)
}

// EnvName returns the network name in the form used by environment variable keys
func (n NetworkID) EnvName() string {
	return strings.ToUpper(strings.ReplaceAll(n.String(), "-", "_"))
}

// IsSupported reports whether contract addresses are known for the network
func (n NetworkID) IsSupported() bool {
	_, ok := contractsByNetwork[n]
	return ok
}

// ParseNetwork accepts either a network name ("mainnet") or a chain id ("1")
func ParseNetwork(s string) (NetworkID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty network identifier")
	}
	for id, name := range networkNames {
		if name == s || strings.ReplaceAll(name, "-", "_") == s {
			return id, nil
		}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown network %q", s)
	}
	return NetworkID(id), nil
}

// SupportedNetworks returns every network with known contract deployments, ordered by chain id
func SupportedNetworks() []NetworkID {
	ids := make([]NetworkID, 0, len(contractsByNetwork))
	for id := range contractsByNetwork {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contracts holds the per-network deployment addresses the providers call into
type Contracts struct {
	Multicall    common.Address // UniswapInterfaceMulticall
	QuoterV2     common.Address
	V3Factory    common.Address
	PoolInitHash common.Hash
}

var (
	defaultMulticall = common.HexToAddress("0x1F98415757620B543A52E61c46B32eB19261F984")
	defaultQuoterV2  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	defaultFactory   = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	poolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
)

var contractsByNetwork = map[NetworkID]Contracts{
	Mainnet:       {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	Goerli:        {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	Optimism:      {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	Polygon:       {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	PolygonMumbai: {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	ArbitrumOne:   {Multicall: defaultMulticall, QuoterV2: defaultQuoterV2, V3Factory: defaultFactory, PoolInitHash: poolInitCodeHash},
	Celo: {
		Multicall:    common.HexToAddress("0x633987602DE5C4F337e3DbF265303A1080324204"),
		QuoterV2:     common.HexToAddress("0x82825d0554fA07f7FC52Ab63c961F330fdEFa8E8"),
		V3Factory:    common.HexToAddress("0xAfE208a311B21f13EF87E33A90049fC17A7acDEc"),
		PoolInitHash: poolInitCodeHash,
	},
	Base: {
		Multicall:    common.HexToAddress("0x091e99cb1C49331a94dD62755D168E941AbD0693"),
		QuoterV2:     common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a"),
		V3Factory:    common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD"),
		PoolInitHash: poolInitCodeHash,
	},
}

// ContractsFor returns the deployment addresses for a network
func ContractsFor(n NetworkID) (Contracts, bool) {
	c, ok := contractsByNetwork[n]
	return c, ok
}
