// Package policy decides which chain kinds may be executed by sessions.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"solbridge/pkg/types"
)

// ErrExecutionDisabled is wrapped by every policy rejection
var ErrExecutionDisabled = errors.New("execution disabled")

// BlockedError names the chain kinds, and the individual chains of
// otherwise verified kinds, a route may not execute on
type BlockedError struct {
	Chains   []types.ChainKind
	Networks []string
}

func (e *BlockedError) Error() string {
	names := make([]string, 0, len(e.Chains)+len(e.Networks))
	for _, c := range e.Chains {
		names = append(names, string(c))
	}
	names = append(names, e.Networks...)
	return fmt.Sprintf("execution is disabled for %s: server-side finality verification is not available", strings.Join(names, ", "))
}

// Unwrap lets errors.Is match ErrExecutionDisabled
func (e *BlockedError) Unwrap() error {
	return ErrExecutionDisabled
}

// UnverifiedKinds returns the chain kinds without a finality checker
func UnverifiedKinds() []types.ChainKind {
	return []types.ChainKind{types.ChainBitcoin, types.ChainCosmos, types.ChainTON}
}

func isUnverified(kind types.ChainKind) bool {
	for _, k := range UnverifiedKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// Coverage reports chains whose kind has a finality verifier that cannot
// reach the given chain id
type Coverage interface {
	Uncovered(kind types.ChainKind, chainID types.ChainID) bool
}

// Gate is the execution policy. The zero value denies unverified kinds.
type Gate struct {
	AllowUnverified bool
	Coverage        Coverage
}

// NewGate builds the gate for an environment. Without an explicit override,
// unverified chains are allowed everywhere except production.
func NewGate(environment string, override *bool) Gate {
	if override != nil {
		return Gate{AllowUnverified: *override}
	}
	return Gate{AllowUnverified: !strings.EqualFold(strings.TrimSpace(environment), "production")}
}

// BlockedChainTypes returns the denied chain kinds among steps, in order of
// first appearance and without duplicates.
func (g Gate) BlockedChainTypes(steps []types.RouteStep) []types.ChainKind {
	if g.AllowUnverified {
		return nil
	}

	var blocked []types.ChainKind
	seen := make(map[types.ChainKind]bool)
	for _, s := range steps {
		if !isUnverified(s.ChainKind) || seen[s.ChainKind] {
			continue
		}
		seen[s.ChainKind] = true
		blocked = append(blocked, s.ChainKind)
	}
	return blocked
}

// UncoveredChains returns the steps' chains, as "<kind> chain <id>", whose
// kind is verified in general but not on that chain id
func (g Gate) UncoveredChains(steps []types.RouteStep) []string {
	if g.AllowUnverified || g.Coverage == nil {
		return nil
	}

	var uncovered []string
	seen := make(map[string]bool)
	for _, s := range steps {
		if isUnverified(s.ChainKind) || !g.Coverage.Uncovered(s.ChainKind, s.ChainID) {
			continue
		}
		name := fmt.Sprintf("%s chain %s", s.ChainKind, s.ChainID)
		if seen[name] {
			continue
		}
		seen[name] = true
		uncovered = append(uncovered, name)
	}
	return uncovered
}

// Check returns a *BlockedError when any step is denied
func (g Gate) Check(steps []types.RouteStep) error {
	blocked := g.BlockedChainTypes(steps)
	uncovered := g.UncoveredChains(steps)
	if len(blocked) > 0 || len(uncovered) > 0 {
		return &BlockedError{Chains: blocked, Networks: uncovered}
	}
	return nil
}
