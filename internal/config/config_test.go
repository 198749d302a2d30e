package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "OTEL_EXPORTER_OTLP_ENDPOINT", "SERVICE_NAME", "LOG_LEVEL", "LOG_FORMAT", "REQUEST_TIMEOUT",
		"SUPPORTED_CHAINS", "TOKEN_LIST_URI", "BLOCKED_TOKEN_LIST_URI", "SUBGRAPH_URI", "VERIFY_CHAIN_ID",
		"MULTICALL_GAS_PER_CALL", "RPC_RATE_LIMIT_RPS", "RPC_RATE_LIMIT_BURST", "RPC_RETRY_MAX",
		"RPC_RETRY_WAIT_MIN", "RPC_RETRY_WAIT_MAX", "CIRCUIT_FAILURE_THRESHOLD", "CIRCUIT_RESET_DELAY",
		"QUOTE_RETRIES", "QUOTE_RETRY_MIN_DELAY", "QUOTE_RETRY_MAX_DELAY", "QUOTE_CHUNK_SIZE",
		"QUOTE_GAS_PER_CALL", "QUOTE_MIN_SUCCESS_RATE", "TOKEN_CACHE_TTL", "POOL_CACHE_TTL", "GAS_CACHE_TTL",
		"CACHE_SWEEP_INTERVAL",
	}
	for _, n := range types.SupportedNetworks() {
		keys = append(keys, EndpointEnvKey(n))
	}
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []types.NetworkID{types.Mainnet}, cfg.Networks)
	assert.Empty(t, cfg.Endpoints)
	assert.Equal(t, fetch.DefaultSubgraphURI, cfg.SubgraphURI)
	assert.Equal(t, uint64(375_000), cfg.MulticallGasPerCall)
	assert.Equal(t, batch.DefaultRetryPolicy(), cfg.Retry)
	assert.Equal(t, batch.DefaultBatchPolicy(), cfg.Batch)
	assert.Equal(t, 60*time.Second, cfg.Cache.PoolTTL)
	assert.Equal(t, 15*time.Second, cfg.Cache.GasPriceTTL)
	assert.Zero(t, cfg.Cache.TokenTTL, "Token entries should never expire by default")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SUPPORTED_CHAINS", "mainnet, polygon,42161")
	t.Setenv("CHAIN_MAINNET_RPC_ENDPOINT", "https://eth.example.com")
	t.Setenv("CHAIN_ARBITRUM_RPC_ENDPOINT", " https://arb.example.com ")
	t.Setenv("QUOTE_RETRIES", "5")
	t.Setenv("QUOTE_RETRY_MAX_DELAY", "3s")
	t.Setenv("QUOTE_MIN_SUCCESS_RATE", "0.5")
	t.Setenv("GAS_CACHE_TTL", "30s")
	t.Setenv("VERIFY_CHAIN_ID", "true")
	t.Setenv("RPC_RATE_LIMIT_RPS", "not-a-number")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []types.NetworkID{types.Mainnet, types.Polygon, types.ArbitrumOne}, cfg.Networks)
	assert.Equal(t, map[types.NetworkID]string{
		types.Mainnet:     "https://eth.example.com",
		types.ArbitrumOne: "https://arb.example.com",
	}, cfg.Endpoints, "Only requested networks should pick up endpoints")
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Retry.MaxDelay)
	assert.InDelta(t, 0.5, cfg.Batch.MinSuccessRate, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Cache.GasPriceTTL)
	assert.True(t, cfg.VerifyChainID)
	assert.InDelta(t, 25.0, cfg.RPC.RequestsPerSecond, 1e-9, "Invalid values should keep the default")
}

func TestLoad_UnknownNetwork(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPPORTED_CHAINS", "mainnet,moonchain")

	_, err := LoadFrom("")
	assert.ErrorContains(t, err, "moonchain")
}

func TestLoad_InvalidPolicy(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUOTE_CHUNK_SIZE", "0")

	_, err := LoadFrom("")
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
log_format: json
chains:
  base:
    rpc_endpoint: https://base.example.com
  optimism:
    rpc_endpoint: https://op.example.com
  celo:
    enabled: false
    rpc_endpoint: https://celo.example.com
quote_retry:
  max_retries: 4
  min_delay: 50ms
  max_delay: 2s
cache:
  pool_ttl: 2m
`), 0o600))
	t.Setenv("PORT", "7001")
	t.Setenv("CHAIN_BASE_RPC_ENDPOINT", "https://base-override.example.com")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port, "Environment should win over the file")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.ElementsMatch(t, []types.NetworkID{types.Base, types.Optimism}, cfg.Networks, "Disabled chains should be skipped")
	assert.Equal(t, "https://base-override.example.com", cfg.Endpoints[types.Base])
	assert.Equal(t, "https://op.example.com", cfg.Endpoints[types.Optimism])
	assert.Equal(t, batch.RetryPolicy{MaxRetries: 4, MinDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}, cfg.Retry)
	assert.Equal(t, 2*time.Minute, cfg.Cache.PoolTTL)
	assert.Equal(t, 15*time.Second, cfg.Cache.GasPriceTTL, "Absent keys should keep defaults")
	assert.Equal(t, batch.DefaultBatchPolicy(), cfg.Batch)
}

func TestLoad_JSONFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": "7100", "chains": {"1": {"rpc_endpoint": "https://eth.example.com"}}}`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Port)
	assert.Equal(t, []types.NetworkID{types.Mainnet}, cfg.Networks)
	assert.Equal(t, "https://eth.example.com", cfg.Endpoints[types.Mainnet])
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	_, err = LoadFrom(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestRPCConfig_Options(t *testing.T) {
	opts := Default().RPC.Options(nil)
	assert.InDelta(t, 25.0, opts.RequestsPerSecond, 1e-9)
	assert.Equal(t, 5, opts.BreakerFailures)
	assert.Nil(t, opts.Sink)
}

func TestEndpointEnvKey(t *testing.T) {
	assert.Equal(t, "CHAIN_MAINNET_RPC_ENDPOINT", EndpointEnvKey(types.Mainnet))
	assert.Equal(t, "CHAIN_POLYGON_MUMBAI_RPC_ENDPOINT", EndpointEnvKey(types.PolygonMumbai))
}
