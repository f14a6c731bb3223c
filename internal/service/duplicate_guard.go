package service

import (
	"context"
	"log"
	"time"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
)

// DuplicateGuard suppresses repeated link requests for the same key within a window.
type DuplicateGuard interface {
	// Acquire reports false when the key is already held.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// CacheDuplicateGuard holds keys in the cache with a TTL.
type CacheDuplicateGuard struct {
	cache  repository.CacheRepository
	window time.Duration
	prefix string
}

func NewCacheDuplicateGuard(cache repository.CacheRepository, window time.Duration) *CacheDuplicateGuard {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &CacheDuplicateGuard{cache: cache, window: window, prefix: "dedupe:"}
}

// Acquire fails open when the cache is unavailable, like the rate limiter.
func (g *CacheDuplicateGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.cache.SetNX(ctx, g.prefix+key, time.Now().Unix(), g.window)
	if err != nil {
		log.Printf("[DuplicateGuard] Cache error for key %s: %v. Allowing request (fail-open).", key, err)
		return true, nil
	}
	return ok, nil
}

func (g *CacheDuplicateGuard) Release(ctx context.Context, key string) {
	if err := g.cache.Delete(ctx, g.prefix+key); err != nil {
		log.Printf("[DuplicateGuard] Failed to release key %s: %v", key, err)
	}
}

// NoopDuplicateGuard never blocks.
type NoopDuplicateGuard struct{}

func (NoopDuplicateGuard) Acquire(ctx context.Context, key string) (bool, error) { return true, nil }
func (NoopDuplicateGuard) Release(ctx context.Context, key string)               {}
