package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"solbridge/pkg/types"
)

// ContextFingerprint hashes the parts of an intent a route is bound to.
// Token and EVM wallet addresses are compared case-insensitively.
func ContextFingerprint(intent types.TransferIntent) string {
	parts := []string{
		strings.TrimSpace(intent.SourceChainID.String()),
		string(intent.SourceChainKind),
		strings.ToLower(strings.TrimSpace(intent.SourceToken)),
		strings.TrimLeft(strings.TrimSpace(intent.SourceAmount), "0"),
		strings.ToLower(strings.TrimSpace(intent.DestinationToken)),
		strings.ToLower(strings.TrimSpace(intent.SourceAddress)),
		strings.TrimSpace(intent.SolanaAddress),
		normalizeSlippage(intent.SlippagePercent),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func normalizeSlippage(s string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return d.String()
}

// CanonicalRoute serializes the semantically meaningful fields of a route.
// Object keys are sorted, so the output does not depend on field order, and
// signature metadata is never included.
func CanonicalRoute(route types.NormalizedRoute) ([]byte, error) {
	steps := make([]any, 0, len(route.Steps))
	for _, s := range route.Steps {
		step := map[string]any{
			"chainType":   string(s.ChainKind),
			"chainId":     s.ChainID.String(),
			"provider":    s.Provider,
			"description": s.Description,
			"tokenOut":    s.TokenOut,
			"spender":     strings.ToLower(s.Spender),
		}
		if s.TokenIn != nil {
			step["tokenIn"] = tokenAmount(*s.TokenIn)
		}
		steps = append(steps, step)
	}

	fees := make([]any, 0, len(route.Fees))
	for _, f := range route.Fees {
		fees = append(fees, tokenAmount(f))
	}

	doc := map[string]any{
		"provider": route.Provider,
		"routeId":  route.RouteID,
		"steps":    steps,
		"output":   tokenAmount(route.EstimatedOutput),
		"fees":     fees,
	}
	if route.EstimatedSeconds != nil {
		doc["eta"] = *route.EstimatedSeconds
	}
	if route.Action != nil {
		doc["action"] = map[string]any{
			"type":  route.Action.Type,
			"url":   route.Action.URL,
			"label": route.Action.Label,
		}
	}

	return json.Marshal(doc)
}

func tokenAmount(t types.TokenAmount) map[string]any {
	return map[string]any{
		"token":  t.Token,
		"amount": t.Amount,
	}
}
