// Package cache provides a small JSON read-through cache over Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the byte-level backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Config selects the Redis endpoint. An empty Addr disables caching.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// RedisStore implements Store with go-redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis connects and pings. The caller closes the store.
func NewRedis(ctx context.Context, cfg Config) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache: empty redis address")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// JSON stores values as JSON under a key prefix with a fixed TTL.
type JSON struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// NewJSON wraps store. A zero ttl defaults to one minute.
func NewJSON(store Store, prefix string, ttl time.Duration) *JSON {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &JSON{store: store, prefix: prefix, ttl: ttl}
}

// Key joins parts under the prefix.
func (c *JSON) Key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if c.prefix != "" {
		all = append(all, c.prefix)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}

// Get decodes key into dst. It returns ErrMiss when absent.
func (c *JSON) Get(ctx context.Context, key string, dst any) error {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

func (c *JSON) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, b, c.ttl)
}

func (c *JSON) Delete(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}
