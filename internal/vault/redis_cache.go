package vault

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "relay:token:"

// RedisCache shares access tokens across processes. Values are sealed with
// the vault cipher so the cache never holds plaintext tokens.
type RedisCache struct {
	client *redis.Client
	cipher *Cipher
	log    logging.Logger
}

// NewRedisCache connects to REDIS_URL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, cipher *Cipher, log logging.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, cipher, log), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, cipher *Cipher, log logging.Logger) *RedisCache {
	return &RedisCache{client: client, cipher: cipher, log: log.WithComponent("token-cache")}
}

func redisKey(userID uint) string {
	return redisKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// Put stores the token with a TTL matching its remaining lifetime. Tokens
// that are already expired are not stored.
func (c *RedisCache) Put(ctx context.Context, userID uint, token string, expiresAt time.Time) {
	if token == "" {
		return
	}
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return
		}
	}
	sealed, err := c.cipher.Encrypt(token)
	if err != nil {
		c.log.Error("Failed to seal cached token", err, logging.UserID(userID))
		return
	}
	if err := c.client.Set(ctx, redisKey(userID), sealed, ttl).Err(); err != nil {
		c.log.Warn("Failed to cache token", logging.UserID(userID), logging.Err(err))
	}
}

// Get returns the cached token, or "" on miss or any redis failure.
func (c *RedisCache) Get(ctx context.Context, userID uint) string {
	val, err := c.client.Get(ctx, redisKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Token cache lookup failed", logging.UserID(userID), logging.Err(err))
		}
		return ""
	}
	return c.cipher.Decrypt(val)
}

func (c *RedisCache) Clear(ctx context.Context, userID uint) {
	if err := c.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		c.log.Warn("Failed to clear cached token", logging.UserID(userID), logging.Err(err))
	}
}

func (c *RedisCache) ClearAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("Failed to scan token cache", logging.Err(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("Failed to clear token cache", logging.Err(err))
	}
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
