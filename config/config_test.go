package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 12*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 10*time.Minute, cfg.QuoteTTL)
	assert.Equal(t, "confirmed", cfg.Solana.Commitment)
	assert.Equal(t, uint64(2), cfg.EVM.Confirmations)
	assert.Nil(t, cfg.AllowUnverifiedChains)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Empty(t, cfg.RateLimits)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SOLBRIDGE_ENVIRONMENT", "Production")
	t.Setenv("SOLBRIDGE_ALLOW_UNVERIFIED_CHAINS", "true")
	t.Setenv("SOLBRIDGE_CORS_ORIGINS", "https://app.example.org, https://admin.example.org")
	t.Setenv("SOLBRIDGE_TRUSTED_PROXIES", "10.0.0.0/8")
	t.Setenv("SOLBRIDGE_EVM_RPC_URLS", "1=https://eth.example.org,8453=https://base.example.org")
	t.Setenv("SOLBRIDGE_PROVIDERS_LIFI_API_KEY", "lifi-key")
	t.Setenv("SOLBRIDGE_PROVIDERS_DISABLED", "debridge")
	t.Setenv("SOLBRIDGE_RATE_LIMITS_QUOTE_MAX", "5")
	t.Setenv("SOLBRIDGE_RATE_LIMITS_QUOTE_WINDOW", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	require.NotNil(t, cfg.AllowUnverifiedChains)
	assert.True(t, *cfg.AllowUnverifiedChains)
	assert.Equal(t, []string{"https://app.example.org", "https://admin.example.org"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedProxies)
	assert.Equal(t, map[string]string{"1": "https://eth.example.org", "8453": "https://base.example.org"}, cfg.EVM.RPCUrls)
	assert.Equal(t, "lifi-key", cfg.Providers.LiFiAPIKey)
	assert.Equal(t, []string{"debridge"}, cfg.Providers.Disabled)
	assert.Equal(t, RateLimitConfig{Max: 5, Window: 10 * time.Second}, cfg.RateLimits["quote"])
}

func TestLoad_EnvironmentWhitespace(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SOLBRIDGE_ENVIRONMENT", " Production \n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_InvalidRPCMap(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SOLBRIDGE_EVM_RPC_URLS", "https://eth.example.org")

	_, err := Load()
	assert.ErrorContains(t, err, "evm.rpc_urls")
}

func TestValidate(t *testing.T) {
	secret := strings.Repeat("a", MinSecretLength)
	other := strings.Repeat("b", MinSecretLength)

	base := func() *Config {
		return &Config{
			Environment:     "production",
			ListenAddr:      ":8080",
			ProviderTimeout: time.Second,
			QuoteTTL:        time.Minute,
		}
	}

	cfg := base()
	assert.ErrorContains(t, cfg.Validate(), "SOLBRIDGE_ROUTE_SIGNING_SECRET")

	cfg.RouteSigningSecret = secret
	assert.ErrorContains(t, cfg.Validate(), "SOLBRIDGE_SESSION_SIGNING_SECRET")

	cfg.SessionSigningSecret = secret
	assert.ErrorContains(t, cfg.Validate(), "must differ")

	cfg.SessionSigningSecret = other
	assert.NoError(t, cfg.Validate())

	dev := base()
	dev.Environment = "development"
	assert.NoError(t, dev.Validate(), "development may run with ephemeral keys")

	dev.ProviderTimeout = 0
	assert.Error(t, dev.Validate())
}
