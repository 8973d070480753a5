package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

// EnvOverrides is the gateway-wide configuration read from MCP_* environment
// variables (spec.md §6), separate from the per-backend desired-state file.
type EnvOverrides struct {
	DefaultStrategy      gateway.RouteStrategy
	EnableNamespaces     bool
	CacheTTL             time.Duration
	RequestTimeout       time.Duration
	HealthCheckInterval  time.Duration
	HealthCheckTimeout   time.Duration
	MaxRetries           int
	RetryBackoffSeconds  float64
	MaxBackoff           time.Duration
}

// LoadEnvOverrides binds and reads the MCP_* environment variables via
// viper, the same env-binding mechanism the teacher's CLI commands use
// for flag/env precedence.
func LoadEnvOverrides() (EnvOverrides, error) {
	v := viper.New()
	v.SetEnvPrefix("MCP")
	v.AutomaticEnv()

	v.SetDefault("default_strategy", string(gateway.StrategyCapability))
	v.SetDefault("enable_namespaces", true)
	v.SetDefault("cache_ttl", 300)
	v.SetDefault("request_timeout", 30)
	v.SetDefault("health_check_interval", 30)
	v.SetDefault("health_check_timeout", 5)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_backoff", 2.0)
	v.SetDefault("max_backoff", 10)

	strategy := gateway.RouteStrategy(v.GetString("default_strategy"))
	switch strategy {
	case gateway.StrategyCapability, gateway.StrategyPath, gateway.StrategyFallback:
	default:
		return EnvOverrides{}, ferrors.NewInvalidConfigurationError(
			"MCP_DEFAULT_STRATEGY must be one of capability, path, fallback", nil)
	}

	return EnvOverrides{
		DefaultStrategy:     strategy,
		EnableNamespaces:    v.GetBool("enable_namespaces"),
		CacheTTL:            time.Duration(v.GetInt("cache_ttl")) * time.Second,
		RequestTimeout:      time.Duration(v.GetInt("request_timeout")) * time.Second,
		HealthCheckInterval: time.Duration(v.GetInt("health_check_interval")) * time.Second,
		HealthCheckTimeout:  time.Duration(v.GetInt("health_check_timeout")) * time.Second,
		MaxRetries:          v.GetInt("max_retries"),
		RetryBackoffSeconds: v.GetFloat64("retry_backoff"),
		MaxBackoff:          time.Duration(v.GetInt("max_backoff")) * time.Second,
	}, nil
}
