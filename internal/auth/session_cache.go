package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/learnhub/learnhub/internal/cache"
)

const sessionCacheKeyPrefix = "auth:sessions:anchor:"

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache remembers anchors recently confirmed live. Only positive results are stored.
type SessionCache interface {
	Get(ctx context.Context, anchor string) (*Principal, error)
	Set(ctx context.Context, anchor string, principal *Principal, ttl time.Duration) error
	Delete(ctx context.Context, anchors ...string) error
}

// NewSessionCache wraps a shared cache store (Redis, SQL or memory) inside a SessionCache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &sessionStoreCache{store: store}
}

type sessionStoreCache struct {
	store cache.Store
}

func (c *sessionStoreCache) Get(ctx context.Context, anchor string) (*Principal, error) {
	data, found, err := c.store.Get(ctx, cacheKey(anchor))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var principal Principal
	if err := json.Unmarshal(data, &principal); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return &principal, nil
}

func (c *sessionStoreCache) Set(ctx context.Context, anchor string, principal *Principal, ttl time.Duration) error {
	if principal == nil {
		return errors.New("session cache: principal is nil")
	}
	payload, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.store.Set(ctx, cacheKey(anchor), payload, ttl)
}

func (c *sessionStoreCache) Delete(ctx context.Context, anchors ...string) error {
	keys := make([]string, 0, len(anchors))
	for _, anchor := range anchors {
		if anchor != "" {
			keys = append(keys, cacheKey(anchor))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// cacheKey hashes the anchor so raw anchors never land in the cache keyspace.
func cacheKey(anchor string) string {
	sum := sha256.Sum256([]byte(anchor))
	return sessionCacheKeyPrefix + hex.EncodeToString(sum[:])
}
