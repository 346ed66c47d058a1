package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"solbridge/pkg/provider"
	"solbridge/pkg/registry"
	"solbridge/pkg/types"
)

// RateSource prices Solana swaps
type RateSource interface {
	Rate(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (num, den *big.Int, err error)
}

// Composition rescales routes that bridge into ViaMint so they end in
// DestinationMint at the rate Num/Den.
type Composition struct {
	ViaMint         string
	DestinationMint string
	Num             *big.Int
	Den             *big.Int
}

// SwapPlan names the intermediate mint providers are quoted toward
type SwapPlan struct {
	ViaMint string
}

// Composer decides when a destination asset must be reached through an
// intermediate mint plus a Solana swap.
type Composer struct {
	registry registry.Registry
	rates    RateSource
	logger   *zap.Logger
}

// NewComposer creates a Composer
func NewComposer(reg registry.Registry, rates RateSource, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{registry: reg, rates: rates, logger: logger}
}

// Plan returns the intermediate mint for the intent's destination, or nil
// when the destination is quoted directly. Registry failures never fail
// quoting.
func (c *Composer) Plan(ctx context.Context, intent types.TransferIntent) *SwapPlan {
	token, err := c.registry.FindByMint(ctx, intent.DestinationToken)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			c.logger.Warn("registry lookup failed", zap.String("mint", intent.DestinationToken), zap.Error(err))
		}
		return nil
	}
	if token.SwapViaMint == "" || token.SwapViaMint == intent.DestinationToken {
		return nil
	}
	return &SwapPlan{ViaMint: token.SwapViaMint}
}

// Resolve fetches one swap rate for a reference amount of the
// intermediate mint.
func (c *Composer) Resolve(ctx context.Context, intent types.TransferIntent, plan *SwapPlan, referenceAmount string) (Composition, error) {
	if !isAmount(referenceAmount) || referenceAmount == "0" {
		return Composition{}, fmt.Errorf("invalid reference amount %q", referenceAmount)
	}

	num, den, err := c.rates.Rate(ctx, plan.ViaMint, intent.DestinationToken, referenceAmount, provider.SlippageBps(intent.SlippagePercent))
	if err != nil {
		return Composition{}, err
	}

	return Composition{
		ViaMint:         plan.ViaMint,
		DestinationMint: intent.DestinationToken,
		Num:             num,
		Den:             den,
	}, nil
}

// Compose appends a Solana swap step to every route and rescales its
// output. It is a pure function: input routes are not modified and each
// route keeps its provider and route id.
func Compose(routes []types.NormalizedRoute, c Composition) []types.NormalizedRoute {
	out := make([]types.NormalizedRoute, 0, len(routes))
	for _, r := range routes {
		if r.Action != nil || c.Den == nil || c.Den.Sign() == 0 {
			out = append(out, r.Clone())
			continue
		}

		route := r.Clone()
		bridged := route.EstimatedOutput.Amount

		amount, ok := new(big.Int).SetString(bridged, 10)
		if !ok {
			amount = new(big.Int)
		}
		amount.Mul(amount, c.Num)
		amount.Quo(amount, c.Den)

		route.Steps = append(route.Steps, types.RouteStep{
			ChainKind:   types.ChainSolana,
			ChainID:     "solana",
			Provider:    provider.NameJupiter,
			Description: "Swap on Jupiter to destination token",
			TokenIn:     &types.TokenAmount{Token: c.ViaMint, Amount: bridged},
			TokenOut:    c.DestinationMint,
		})
		route.EstimatedOutput = types.TokenAmount{Token: c.DestinationMint, Amount: amount.String()}
		route.Warnings = append(route.Warnings, "Final amount depends on the Solana swap price at execution time")
		out = append(out, route)
	}
	return out
}
