package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/pkg/config"
	"github.com/traffiq/backend/pkg/logger"
)

const replyPrefix = "chat:"

type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

// Wrap uses an existing go-redis client.
func Wrap(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetReply(ctx context.Context, key string, reply any, ttl time.Duration) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = c.client.Set(ctx, replyPrefix+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set reply cache: %w", err)
	}

	logger.Debug("Reply cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetReply(ctx context.Context, key string, reply any) (bool, error) {
	data, err := c.client.Get(ctx, replyPrefix+key).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("reply").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get reply cache: %w", err)
	}

	err = json.Unmarshal(data, reply)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	metrics.CacheHits.WithLabelValues("reply").Inc()
	logger.Debug("Reply cache hit", zap.String("key", key))
	return true, nil
}

// InvalidateReplies drops every cached assistant reply. Replies embed
// dataset figures, so this runs after each reload.
func (c *Client) InvalidateReplies(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, replyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Reply cache invalidated", zap.Int("deleted", deleted))
	return deleted, nil
}
