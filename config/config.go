package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretLength is the shortest signing secret accepted in production
const MinSecretLength = 32

// ProvidersConfig holds the per-integration settings
type ProvidersConfig struct {
	OneClickJWT     string
	OneClickBaseURL string
	LiFiBaseURL     string
	LiFiAPIKey      string
	DeBridgeBaseURL string
	JupiterBaseURL  string
	Disabled        []string
}

// SolanaConfig holds Solana RPC settings
type SolanaConfig struct {
	RPCUrl     string
	Commitment string
}

// EVMConfig holds EVM RPC settings, keyed by chain id
type EVMConfig struct {
	RPCUrls       map[string]string
	Confirmations uint64
}

// RateLimitConfig is one endpoint class budget
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// Config holds the application configuration
type Config struct {
	Environment           string
	ListenAddr            string
	LogLevel              string
	RouteSigningSecret    string
	SessionSigningSecret  string
	RedisURL              string
	PostgresDSN           string
	SessionFile           string
	ProviderTimeout       time.Duration
	QuoteTTL              time.Duration
	CORSOrigins           []string
	TrustedProxies        []string
	AllowUnverifiedChains *bool
	APIURL                string

	Providers  ProvidersConfig
	Solana     SolanaConfig
	EVM        EVMConfig
	RateLimits map[string]RateLimitConfig
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".solbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables, SOLBRIDGE_PROVIDERS_LIFI_API_KEY etc.
	v.SetEnvPrefix("SOLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("route_signing_secret", "")
	v.SetDefault("session_signing_secret", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("session_file", "")
	v.SetDefault("provider_timeout", "12s")
	v.SetDefault("quote_ttl", "10m")
	v.SetDefault("cors_origins", "")
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("api_url", "http://localhost:8080")

	v.SetDefault("providers.oneclick.jwt_token", "")
	v.SetDefault("providers.oneclick.base_url", "https://1click.chaindefuser.com")
	v.SetDefault("providers.lifi.base_url", "https://li.quest")
	v.SetDefault("providers.lifi.api_key", "")
	v.SetDefault("providers.debridge.base_url", "https://dln.debridge.finance")
	v.SetDefault("providers.jupiter.base_url", "https://lite-api.jup.ag/swap/v1")
	v.SetDefault("providers.disabled", "")

	v.SetDefault("solana.rpc_url", "")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("evm.rpc_urls", "")
	v.SetDefault("evm.confirmations", 2)

	for _, class := range []string{"quote", "session", "step", "status"} {
		v.SetDefault("rate_limits."+class+".max", 0)
		v.SetDefault("rate_limits."+class+".window", "1m")
	}
}

func fromViper(v *viper.Viper) (*Config, error) {
	rpcURLs, err := stringMap(v, "evm.rpc_urls")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:          strings.ToLower(strings.TrimSpace(v.GetString("environment"))),
		ListenAddr:           v.GetString("listen_addr"),
		LogLevel:             v.GetString("log_level"),
		RouteSigningSecret:   v.GetString("route_signing_secret"),
		SessionSigningSecret: v.GetString("session_signing_secret"),
		RedisURL:             v.GetString("redis_url"),
		PostgresDSN:          v.GetString("postgres_dsn"),
		SessionFile:          v.GetString("session_file"),
		ProviderTimeout:      v.GetDuration("provider_timeout"),
		QuoteTTL:             v.GetDuration("quote_ttl"),
		CORSOrigins:          stringList(v, "cors_origins"),
		TrustedProxies:       stringList(v, "trusted_proxies"),
		APIURL:               v.GetString("api_url"),
		Providers: ProvidersConfig{
			OneClickJWT:     v.GetString("providers.oneclick.jwt_token"),
			OneClickBaseURL: v.GetString("providers.oneclick.base_url"),
			LiFiBaseURL:     v.GetString("providers.lifi.base_url"),
			LiFiAPIKey:      v.GetString("providers.lifi.api_key"),
			DeBridgeBaseURL: v.GetString("providers.debridge.base_url"),
			JupiterBaseURL:  v.GetString("providers.jupiter.base_url"),
			Disabled:        stringList(v, "providers.disabled"),
		},
		Solana: SolanaConfig{
			RPCUrl:     v.GetString("solana.rpc_url"),
			Commitment: v.GetString("solana.commitment"),
		},
		EVM: EVMConfig{
			RPCUrls:       rpcURLs,
			Confirmations: v.GetUint64("evm.confirmations"),
		},
		RateLimits: make(map[string]RateLimitConfig),
	}

	if v.IsSet("allow_unverified_chains") {
		allow := v.GetBool("allow_unverified_chains")
		cfg.AllowUnverifiedChains = &allow
	}

	for _, class := range []string{"quote", "session", "step", "status"} {
		if max := v.GetInt("rate_limits." + class + ".max"); max > 0 {
			cfg.RateLimits[class] = RateLimitConfig{
				Max:    max,
				Window: v.GetDuration("rate_limits." + class + ".window"),
			}
		}
	}

	return cfg, nil
}

// stringList accepts YAML lists and comma separated env values
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	default:
		raw = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringMap accepts YAML maps and "key=value,key=value" env values
func stringMap(v *viper.Viper, key string) (map[string]string, error) {
	val, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringMapString(key), nil
	}

	out := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid %s entry %q, expected key=value", key, pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(value)
	}
	return out, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks settings the server cannot run without. In production it
// fails closed on missing or short signing secrets.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("provider_timeout must be positive")
	}
	if c.QuoteTTL <= 0 {
		return fmt.Errorf("quote_ttl must be positive")
	}

	if c.IsProduction() {
		if len(c.RouteSigningSecret) < MinSecretLength {
			return fmt.Errorf("route signing secret must be at least %d characters in production. Set SOLBRIDGE_ROUTE_SIGNING_SECRET", MinSecretLength)
		}
		if len(c.SessionSigningSecret) < MinSecretLength {
			return fmt.Errorf("session signing secret must be at least %d characters in production. Set SOLBRIDGE_SESSION_SIGNING_SECRET", MinSecretLength)
		}
		if c.RouteSigningSecret == c.SessionSigningSecret {
			return fmt.Errorf("route and session signing secrets must differ")
		}
	}
	return nil
}
