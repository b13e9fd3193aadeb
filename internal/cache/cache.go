// Package cache stores rendered LTC files in Redis so identical requests are
// served without re-rendering.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/logger"
	"github.com/zsiec/ltcgen/internal/metrics"
)

const (
	fieldData = "data"
	fieldMeta = "meta"
)

// Entry is one cached render: the encoded file and a JSON description of it.
type Entry struct {
	Data []byte
	Meta json.RawMessage
}

// Cache is a keyed store of rendered files.
type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (entry *Entry, ok bool, err error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Key derives a stable cache key from any JSON-encodable request.
func Key(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewClient builds a Redis client from the redis config section.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addresses[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

// RedisCache keeps each entry in a hash with a TTL.
type RedisCache struct {
	client   *redis.Client
	logger   logger.Logger
	prefix   string
	ttl      time.Duration
	maxBytes int64
}

func NewRedisCache(client *redis.Client, log logger.Logger, cfg config.CacheConfig) *RedisCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ltcgen:render:"
	}
	return &RedisCache{
		client:   client,
		logger:   log.WithField("component", "render_cache"),
		prefix:   prefix,
		ttl:      ttl,
		maxBytes: cfg.MaxEntryBytes,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.prefix+key).Result()
	if err != nil {
		metrics.IncrementCache(metrics.CacheError)
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	data, ok := fields[fieldData]
	if !ok {
		metrics.IncrementCache(metrics.CacheMiss)
		return nil, false, nil
	}

	metrics.IncrementCache(metrics.CacheHit)
	c.logger.WithField("key", key).Debug("Render cache hit")
	return &Entry{Data: []byte(data), Meta: json.RawMessage(fields[fieldMeta])}, true, nil
}

// Set stores entry unless it exceeds the configured size limit, in which
// case it is skipped silently.
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	if c.maxBytes > 0 && int64(len(entry.Data)) > c.maxBytes {
		c.logger.WithFields(map[string]interface{}{
			"key":   key,
			"bytes": len(entry.Data),
			"limit": c.maxBytes,
		}).Debug("Render too large to cache")
		return nil
	}

	k := c.prefix + key
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldData, entry.Data, fieldMeta, []byte(entry.Meta))
		pipe.Expire(ctx, k, c.ttl)
		return nil
	})
	if err != nil {
		metrics.IncrementCache(metrics.CacheError)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Ping checks the connection; the readiness check uses it.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
