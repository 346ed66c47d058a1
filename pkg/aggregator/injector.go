package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"solbridge/pkg/provider"
	"solbridge/pkg/registry"
	"solbridge/pkg/types"
)

// Injector prepends an official bridge route for registered project tokens
type Injector struct {
	registry registry.Registry
	logger   *zap.Logger
}

// NewInjector creates an Injector backed by reg
func NewInjector(reg registry.Registry, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{registry: reg, logger: logger}
}

// Inject returns routes with the official route, if any, in first
// position. The lookup is read-only and its failures never fail quoting.
func (in *Injector) Inject(ctx context.Context, intent types.TransferIntent, routes []types.NormalizedRoute) []types.NormalizedRoute {
	token, err := in.registry.FindBySource(ctx, intent.SourceChainID, intent.SourceToken)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			in.logger.Warn("registry lookup failed",
				zap.String("chain_id", intent.SourceChainID.String()),
				zap.String("token", intent.SourceToken),
				zap.Error(err))
		}
		return routes
	}
	if !token.HasOfficialBridge() || !deliversTo(token, intent.DestinationToken) {
		return routes
	}

	out := make([]types.NormalizedRoute, 0, len(routes)+1)
	out = append(out, OfficialRoute(intent, token))
	return append(out, routes...)
}

// OfficialRoute describes a zero-slippage 1:1 bridge. It carries a
// navigation action instead of executable steps.
func OfficialRoute(intent types.TransferIntent, token *registry.ProjectToken) types.NormalizedRoute {
	label := "Official bridge"
	if token.Symbol != "" {
		label = fmt.Sprintf("Official %s bridge", token.Symbol)
	}

	return types.NormalizedRoute{
		Provider:        provider.NameOfficial,
		RouteID:         fmt.Sprintf("official-%s-%s", intent.SourceChainID, strings.ToLower(intent.SourceToken)),
		Steps:           []types.RouteStep{},
		EstimatedOutput: types.TokenAmount{Token: token.SolanaMint, Amount: intent.SourceAmount},
		Fees:            []types.TokenAmount{},
		Warnings:        []string{"Completed on the project's official bridge page"},
		Action: &types.RouteAction{
			Type:  types.ActionNavigate,
			URL:   token.OfficialBridgeURL,
			Label: label,
		},
	}
}

func deliversTo(token *registry.ProjectToken, destination string) bool {
	return destination == token.SolanaMint || strings.EqualFold(destination, token.Symbol)
}
