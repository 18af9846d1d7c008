package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/flowmesh/core"
)

// RedisOptions holds configuration overrides passed to NewRedisProvider().
type RedisOptions struct {
	// Password authenticates against the server; empty disables auth.
	Password string
	// DB selects the logical database.
	DB int
	// DialTimeout bounds the connection health check.
	DialTimeout time.Duration
	// TTL expires written keys after the given duration. Zero keeps keys
	// forever.
	TTL time.Duration
}

// RedisProvider is a StorageProvider backed by a Redis server. Suitable when
// agent state or message history must be shared across processes or survive
// restarts.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

var _ core.StorageProvider = (*RedisProvider)(nil)

// NewRedisProvider connects to the Redis server at addr and verifies the
// connection with a ping before returning.
func NewRedisProvider(addr string, optFns ...func(o *RedisOptions)) (*RedisProvider, error) {
	opts := RedisOptions{
		DialTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisProvider{client: client, ttl: opts.TTL}, nil
}

// NewRedisProviderFromURL connects using a redis:// URL.
func NewRedisProviderFromURL(redisURL string, optFns ...func(o *RedisOptions)) (*RedisProvider, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts := RedisOptions{
		DialTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", parsed.Addr, err)
	}

	return &RedisProvider{client: client, ttl: opts.TTL}, nil
}

// Get returns the value stored under key.
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, applying the provider's TTL when configured.
func (p *RedisProvider) Set(ctx context.Context, key string, value []byte) error {
	if err := p.client.Set(ctx, key, value, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting an unknown key is not an error.
func (p *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// List returns the keys beginning with prefix via SCAN.
func (p *RedisProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := p.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Close releases the underlying client connection.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
