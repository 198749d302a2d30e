// Package config provides configuration loading and management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/batch"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/rpc"
	"github.com/yourorg/router-providers/internal/types"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string `yaml:"port"`

	// OpenTelemetry endpoint and service name for tracing
	OtelEndpoint string `yaml:"otel_endpoint"`
	ServiceName  string `yaml:"service_name"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Upper bound for a single inbound request
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Networks to build and their RPC endpoints
	Networks  []types.NetworkID          `yaml:"-"`
	Endpoints map[types.NetworkID]string `yaml:"-"`

	// Token list sources: empty means the embedded list, otherwise a file path or http(s) URL
	TokenListSource        string `yaml:"token_list"`
	BlockedTokenListSource string `yaml:"blocked_token_list"`
	SubgraphURI            string `yaml:"subgraph_uri"`

	VerifyChainID       bool   `yaml:"verify_chain_id"`
	MulticallGasPerCall uint64 `yaml:"multicall_gas_per_call"`

	RPC   RPCConfig         `yaml:"rpc"`
	Retry batch.RetryPolicy `yaml:"quote_retry"`
	Batch batch.BatchPolicy `yaml:"quote_batch"`
	Cache CacheConfig       `yaml:"cache"`
}

// RPCConfig tunes every per-network RPC executor
type RPCConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	RetryMax          int           `yaml:"retry_max"`
	RetryWaitMin      time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax      time.Duration `yaml:"retry_wait_max"`
	BreakerFailures   int           `yaml:"breaker_failures"`
	BreakerReset      time.Duration `yaml:"breaker_reset"`
}

// Options converts the settings into executor options reporting to sink
func (c RPCConfig) Options(sink metrics.Sink) rpc.Options {
	return rpc.Options{
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		RetryMax:          c.RetryMax,
		RetryWaitMin:      c.RetryWaitMin,
		RetryWaitMax:      c.RetryWaitMax,
		BreakerFailures:   c.BreakerFailures,
		BreakerReset:      c.BreakerReset,
		Sink:              sink,
	}
}

// CacheConfig holds the per-provider cache lifetimes. Zero means entries never expire.
type CacheConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`
	PoolTTL       time.Duration `yaml:"pool_ttl"`
	GasPriceTTL   time.Duration `yaml:"gas_price_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultCacheConfig returns the cache lifetimes used when nothing is configured
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TokenTTL:      0,
		PoolTTL:       60 * time.Second,
		GasPriceTTL:   15 * time.Second,
		SweepInterval: time.Minute,
	}
}

// Default returns the configuration before any file or environment overrides
func Default() Config {
	d := rpc.DefaultOptions()
	return Config{
		Port:           "8080",
		ServiceName:    "router-providers",
		LogLevel:       "info",
		LogFormat:      "text",
		RequestTimeout: 10 * time.Second,
		Networks:       []types.NetworkID{types.Mainnet},
		Endpoints:      map[types.NetworkID]string{},
		SubgraphURI:    fetch.DefaultSubgraphURI,

		MulticallGasPerCall: multicall.DefaultGasPerCall,
		RPC: RPCConfig{
			RequestsPerSecond: d.RequestsPerSecond,
			Burst:             d.Burst,
			RetryMax:          d.RetryMax,
			RetryWaitMin:      d.RetryWaitMin,
			RetryWaitMax:      d.RetryWaitMax,
			BreakerFailures:   d.BreakerFailures,
			BreakerReset:      d.BreakerReset,
		},
		Retry: batch.DefaultRetryPolicy(),
		Batch: batch.DefaultBatchPolicy(),
		Cache: DefaultCacheConfig(),
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// environment variables, in that order of precedence
func Load() (Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
		logrus.Infof("Loaded configuration from %s", path)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields whose environment variables are set
func (c *Config) applyEnv() error {
	c.Port = GetEnvOrDefault("PORT", c.Port)
	c.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OtelEndpoint)
	c.ServiceName = GetEnvOrDefault("SERVICE_NAME", c.ServiceName)
	c.LogLevel = strings.ToLower(GetEnvOrDefault("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(GetEnvOrDefault("LOG_FORMAT", c.LogFormat))
	c.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	if raw, ok := GetEnv("SUPPORTED_CHAINS"); ok && strings.TrimSpace(raw) != "" {
		networks, err := ParseNetworks(raw)
		if err != nil {
			return fmt.Errorf("SUPPORTED_CHAINS: %w", err)
		}
		c.Networks = networks
	}
	if c.Endpoints == nil {
		c.Endpoints = map[types.NetworkID]string{}
	}
	for _, n := range c.Networks {
		if endpoint, ok := GetEnv(EndpointEnvKey(n)); ok {
			c.Endpoints[n] = strings.TrimSpace(endpoint)
		}
	}

	c.TokenListSource = GetEnvOrDefault("TOKEN_LIST_URI", c.TokenListSource)
	c.BlockedTokenListSource = GetEnvOrDefault("BLOCKED_TOKEN_LIST_URI", c.BlockedTokenListSource)
	c.SubgraphURI = GetEnvOrDefault("SUBGRAPH_URI", c.SubgraphURI)
	c.VerifyChainID = GetEnvAsBool("VERIFY_CHAIN_ID", c.VerifyChainID)
	c.MulticallGasPerCall = GetEnvAsUint64("MULTICALL_GAS_PER_CALL", c.MulticallGasPerCall)

	c.RPC.RequestsPerSecond = GetEnvAsFloat("RPC_RATE_LIMIT_RPS", c.RPC.RequestsPerSecond)
	c.RPC.Burst = GetEnvAsInt("RPC_RATE_LIMIT_BURST", c.RPC.Burst)
	c.RPC.RetryMax = GetEnvAsInt("RPC_RETRY_MAX", c.RPC.RetryMax)
	c.RPC.RetryWaitMin = GetEnvAsDuration("RPC_RETRY_WAIT_MIN", c.RPC.RetryWaitMin)
	c.RPC.RetryWaitMax = GetEnvAsDuration("RPC_RETRY_WAIT_MAX", c.RPC.RetryWaitMax)
	c.RPC.BreakerFailures = GetEnvAsInt("CIRCUIT_FAILURE_THRESHOLD", c.RPC.BreakerFailures)
	c.RPC.BreakerReset = GetEnvAsDuration("CIRCUIT_RESET_DELAY", c.RPC.BreakerReset)

	c.Retry.MaxRetries = GetEnvAsInt("QUOTE_RETRIES", c.Retry.MaxRetries)
	c.Retry.MinDelay = GetEnvAsDuration("QUOTE_RETRY_MIN_DELAY", c.Retry.MinDelay)
	c.Retry.MaxDelay = GetEnvAsDuration("QUOTE_RETRY_MAX_DELAY", c.Retry.MaxDelay)
	c.Batch.ChunkSize = GetEnvAsInt("QUOTE_CHUNK_SIZE", c.Batch.ChunkSize)
	c.Batch.PerCallResourceLimit = GetEnvAsUint64("QUOTE_GAS_PER_CALL", c.Batch.PerCallResourceLimit)
	c.Batch.MinSuccessRate = GetEnvAsFloat("QUOTE_MIN_SUCCESS_RATE", c.Batch.MinSuccessRate)

	c.Cache.TokenTTL = GetEnvAsDuration("TOKEN_CACHE_TTL", c.Cache.TokenTTL)
	c.Cache.PoolTTL = GetEnvAsDuration("POOL_CACHE_TTL", c.Cache.PoolTTL)
	c.Cache.GasPriceTTL = GetEnvAsDuration("GAS_CACHE_TTL", c.Cache.GasPriceTTL)
	c.Cache.SweepInterval = GetEnvAsDuration("CACHE_SWEEP_INTERVAL", c.Cache.SweepInterval)
	return nil
}

// Validate reports settings that can never work. Endpoint checks are left to the registry,
// which reports them per network.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if len(c.Networks) == 0 {
		errs = append(errs, errors.New("no networks configured"))
	}
	if c.MulticallGasPerCall == 0 {
		errs = append(errs, errors.New("multicall gas per call must be > 0"))
	}
	if c.Cache.TokenTTL < 0 || c.Cache.PoolTTL < 0 || c.Cache.GasPriceTTL < 0 {
		errs = append(errs, errors.New("cache TTLs must be >= 0"))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Batch.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", provider.ErrConfiguration, errors.Join(errs...))
}

// EndpointEnvKey returns the variable holding a network's RPC endpoint, e.g. CHAIN_MAINNET_RPC_ENDPOINT
func EndpointEnvKey(n types.NetworkID) string {
	return "CHAIN_" + n.EnvName() + "_RPC_ENDPOINT"
}

// ParseNetworks parses a comma separated list of network names or chain ids
func ParseNetworks(raw string) ([]types.NetworkID, error) {
	var networks []types.NetworkID
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := types.ParseNetwork(part)
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	return networks, nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsUint64 retrieves an environment variable as an unsigned integer with a default value
func GetEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value, exists := GetEnv(key); exists {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
		logrus.Warnf("Invalid unsigned integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid boolean in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}
