package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the shared Redis cache.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
	Prefix   string
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "learnhub:"
)

// RedisStore implements Store on top of go-redis so that every instance behind the load
// balancer shares validation entries and rate limit counters.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore dials Redis and verifies the connection so misconfiguration surfaces at startup.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	store := NewRedisStoreFromClient(redis.NewClient(opts), cfg.Prefix)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// IncrementWithTTL increments the supplied key and sets the TTL on the first hit of a window.
// It returns the current count and the remaining time-to-live.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	prefixed := s.prefixed(key)

	count, err := s.client.Incr(ctx, prefixed).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, prefixed, window).Err(); err != nil {
			return 0, 0, err
		}
	}

	remaining, err := s.client.PTTL(ctx, prefixed).Result()
	if err != nil || remaining < 0 {
		return count, window, nil
	}
	return count, remaining, nil
}

// Set stores a value with PX expiry semantics.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefixed(key), value, ttl).Err()
}

// Get retrieves the value associated with a key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes one or more keys, ignoring missing keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.prefixed(key))
	}
	return s.client.Del(ctx, prefixed...).Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) prefixed(key string) string {
	normalized := normalizeKey(key)
	if strings.HasPrefix(normalized, s.prefix) {
		return normalized
	}
	return normalizeKey(s.prefix + normalized)
}

// normalizeKey collapses repeated separators so "a::b" and "a:b" address the same entry.
func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
