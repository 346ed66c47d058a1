package cmd

import (
	"fmt"
	"strings"

	"solbridge/config"
	"solbridge/pkg/provider"
)

// providerSet is the configured set of integrations
type providerSet struct {
	registry *provider.Registry
	jupiter  *provider.Jupiter
	disabled map[string]bool
}

// buildProviders creates every integration not disabled in configuration.
// The Jupiter swap leg is always registered as a sub-provider.
func buildProviders(cfg *config.Config) (*providerSet, error) {
	disabled := make(map[string]bool)
	for _, name := range cfg.Providers.Disabled {
		name = strings.ToLower(name)
		if !provider.IsKnown(name) {
			return nil, fmt.Errorf("unknown provider %q in providers.disabled, expected one of %s",
				name, strings.Join(provider.KnownProviders(), ", "))
		}
		if name == provider.NameJupiter || name == provider.NameOfficial {
			return nil, fmt.Errorf("provider %q is required by composed and official routes and cannot be disabled", name)
		}
		disabled[name] = true
	}

	reg := provider.NewRegistry()
	if !disabled[provider.NameOneClick] {
		reg.Register(provider.NewOneClick(cfg.Providers.OneClickJWT, cfg.Providers.OneClickBaseURL, nil))
	}
	if !disabled[provider.NameLiFi] {
		reg.Register(provider.NewLiFi(cfg.Providers.LiFiBaseURL, cfg.Providers.LiFiAPIKey, nil))
	}
	if !disabled[provider.NameDeBridge] {
		reg.Register(provider.NewDeBridge(cfg.Providers.DeBridgeBaseURL, nil))
	}

	jupiter := provider.NewJupiter(cfg.Providers.JupiterBaseURL, nil)
	reg.RegisterSubProvider(provider.NameJupiter, jupiter)

	return &providerSet{registry: reg, jupiter: jupiter, disabled: disabled}, nil
}
