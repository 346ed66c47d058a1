package registry

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"solbridge/pkg/types"
)

const (
	// DefaultCacheSize is the number of lookups kept by CachedRegistry
	DefaultCacheSize = 1024

	// DefaultCacheTTL bounds how stale a cached lookup may be
	DefaultCacheTTL = time.Minute
)

type cacheEntry struct {
	token *ProjectToken
}

// CachedRegistry memoizes lookups of another Registry, including misses.
// Backend errors other than ErrNotFound are not cached.
type CachedRegistry struct {
	next     Registry
	bySource *expirable.LRU[string, cacheEntry]
	byMint   *expirable.LRU[string, cacheEntry]
}

var _ Registry = (*CachedRegistry)(nil)

// NewCachedRegistry wraps next with an expiring LRU cache
func NewCachedRegistry(next Registry, size int, ttl time.Duration) *CachedRegistry {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRegistry{
		next:     next,
		bySource: expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		byMint:   expirable.NewLRU[string, cacheEntry](size, nil, ttl),
	}
}

// FindBySource implements Registry
func (c *CachedRegistry) FindBySource(ctx context.Context, chainID types.ChainID, token string) (*ProjectToken, error) {
	key := SourceKey(chainID, token)
	if e, ok := c.bySource.Get(key); ok {
		return e.result()
	}

	t, err := c.next.FindBySource(ctx, chainID, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c.bySource.Add(key, cacheEntry{token: t})
	return cacheEntry{token: t}.result()
}

// FindByMint implements Registry
func (c *CachedRegistry) FindByMint(ctx context.Context, mint string) (*ProjectToken, error) {
	if e, ok := c.byMint.Get(mint); ok {
		return e.result()
	}

	t, err := c.next.FindByMint(ctx, mint)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c.byMint.Add(mint, cacheEntry{token: t})
	return cacheEntry{token: t}.result()
}

func (e cacheEntry) result() (*ProjectToken, error) {
	if e.token == nil {
		return nil, ErrNotFound
	}
	t := *e.token
	return &t, nil
}
