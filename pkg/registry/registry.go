// Package registry looks up project tokens that have an official bridge or
// a preferred swap path on Solana.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"

	"solbridge/pkg/types"
)

// ErrNotFound is returned when no project token matches a lookup
var ErrNotFound = errors.New("project token not found")

// ProjectToken is a registered project asset
type ProjectToken struct {
	ID                string        `json:"id"`
	Symbol            string        `json:"symbol"`
	SourceChainID     types.ChainID `json:"sourceChainId"`
	SourceToken       string        `json:"sourceToken"`
	SolanaMint        string        `json:"solanaMint"`
	Decimals          int           `json:"decimals"`
	OfficialBridgeURL string        `json:"officialBridgeUrl,omitempty"`
	SwapViaMint       string        `json:"swapViaMint,omitempty"` // Intermediate mint to bridge into before swapping
}

// HasOfficialBridge reports whether the token has a 1:1 official bridge
func (t ProjectToken) HasOfficialBridge() bool {
	return t.OfficialBridgeURL != ""
}

// Registry resolves project tokens
type Registry interface {
	// FindBySource returns the token registered for a source chain asset
	FindBySource(ctx context.Context, chainID types.ChainID, token string) (*ProjectToken, error)
	// FindByMint returns the token registered for a Solana mint
	FindByMint(ctx context.Context, mint string) (*ProjectToken, error)
}

// SourceKey normalizes a (chain id, token) lookup key. EVM addresses are
// case-insensitive.
func SourceKey(chainID types.ChainID, token string) string {
	return strings.ToLower(strings.TrimSpace(chainID.String())) + ":" + strings.ToLower(strings.TrimSpace(token))
}

// MemoryRegistry is an in-memory Registry
type MemoryRegistry struct {
	mu       sync.RWMutex
	bySource map[string]ProjectToken
	byMint   map[string]ProjectToken
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates a registry holding tokens
func NewMemoryRegistry(tokens ...ProjectToken) *MemoryRegistry {
	r := &MemoryRegistry{
		bySource: make(map[string]ProjectToken),
		byMint:   make(map[string]ProjectToken),
	}
	for _, t := range tokens {
		r.Put(t)
	}
	return r
}

// Put adds or replaces a token
func (r *MemoryRegistry) Put(t ProjectToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.SourceToken != "" {
		r.bySource[SourceKey(t.SourceChainID, t.SourceToken)] = t
	}
	if t.SolanaMint != "" {
		r.byMint[t.SolanaMint] = t
	}
}

// FindBySource implements Registry
func (r *MemoryRegistry) FindBySource(ctx context.Context, chainID types.ChainID, token string) (*ProjectToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.bySource[SourceKey(chainID, token)]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// FindByMint implements Registry. Solana mints are case-sensitive.
func (r *MemoryRegistry) FindByMint(ctx context.Context, mint string) (*ProjectToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byMint[strings.TrimSpace(mint)]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}
