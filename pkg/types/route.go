package types

// TokenAmount is an amount of a token in its smallest unit
type TokenAmount struct {
	Token  string `json:"token"`
	Amount string `json:"amount"` // Non-negative integer string
}

// RouteStep is one on-chain action within a route
type RouteStep struct {
	ChainKind   ChainKind    `json:"chainType"`
	ChainID     ChainID      `json:"chainId,omitempty"`
	Provider    string       `json:"provider,omitempty"` // Sub-provider executing this step
	Description string       `json:"description"`
	TokenIn     *TokenAmount `json:"tokenIn,omitempty"`
	TokenOut    string       `json:"tokenOut,omitempty"`
	Spender     string       `json:"spender,omitempty"` // Approval target for allowance steps
}

// RouteAction is a non-transactional override, e.g. navigating to an
// official bridge page instead of executing steps.
type RouteAction struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Label string `json:"label,omitempty"`
}

// ActionNavigate directs the user to an external page
const ActionNavigate = "navigate"

// NormalizedRoute is the canonical form every provider response is mapped into
type NormalizedRoute struct {
	Provider         string        `json:"provider"`
	RouteID          string        `json:"routeId"`
	Steps            []RouteStep   `json:"steps"`
	EstimatedOutput  TokenAmount   `json:"estimatedOutput"`
	Fees             []TokenAmount `json:"fees"`
	EstimatedSeconds *int64        `json:"estimatedSeconds,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	Action           *RouteAction  `json:"action,omitempty"`
}

// Key returns the unique (provider, routeId) key of the route
func (r NormalizedRoute) Key() string {
	return r.Provider + ":" + r.RouteID
}

// Clone returns a deep copy of the route
func (r NormalizedRoute) Clone() NormalizedRoute {
	out := r
	if r.Steps != nil {
		out.Steps = make([]RouteStep, len(r.Steps))
		for i, s := range r.Steps {
			if s.TokenIn != nil {
				in := *s.TokenIn
				s.TokenIn = &in
			}
			out.Steps[i] = s
		}
	}
	if r.Fees != nil {
		out.Fees = append([]TokenAmount(nil), r.Fees...)
	}
	if r.Warnings != nil {
		out.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.EstimatedSeconds != nil {
		eta := *r.EstimatedSeconds
		out.EstimatedSeconds = &eta
	}
	if r.Action != nil {
		action := *r.Action
		out.Action = &action
	}
	return out
}

// SignedRoute is a NormalizedRoute bound to its request context.
// The underscore fields are opaque to callers.
type SignedRoute struct {
	NormalizedRoute
	Signature string `json:"_signature,omitempty"`
	Timestamp int64  `json:"_timestamp,omitempty"` // Issue time, unix milliseconds
	ExpiresAt int64  `json:"_expiresAt,omitempty"` // Expiry, unix milliseconds
}

// Seconds returns a pointer to a seconds value
func Seconds(v int64) *int64 {
	return &v
}
