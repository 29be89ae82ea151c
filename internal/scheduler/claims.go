package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	appconfig "github.com/saurav5380/apicompass/internal/config"
)

// ClaimStore hands out single-winner claims so concurrent workers never
// poll the same connection twice in one window. Cancellation markers
// let the API ask in-flight workers to skip a connection.
type ClaimStore interface {
	TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Cancel(ctx context.Context, connID int64, ttl time.Duration) error
	Cancelled(ctx context.Context, connID int64) (bool, error)
}

type RedisClaims struct {
	client *redis.Client
}

func NewRedisClient(cfg appconfig.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewRedisClaims(client *redis.Client) *RedisClaims {
	if client == nil {
		return nil
	}
	return &RedisClaims{client: client}
}

func (c *RedisClaims) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c == nil || c.client == nil {
		return true, nil
	}
	return c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func cancelKey(connID int64) string {
	return fmt.Sprintf("connections:cancel:%d", connID)
}

func (c *RedisClaims) Cancel(ctx context.Context, connID int64, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, cancelKey(connID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

func (c *RedisClaims) Cancelled(ctx context.Context, connID int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, cancelKey(connID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
