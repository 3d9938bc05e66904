package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/cache"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/storage"
	"github.com/url-guardian/client/pkg/logger"
	"github.com/url-guardian/client/pkg/utils"
)

const keyPrefix = "guardian:"

// Client backs both durable records (history, preferences) and the batch result cache.
type Client struct {
	client    *redis.Client
	resultTTL time.Duration
}

func NewClient(host string, port int, password string, db int, resultTTL time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, resultTTL: resultTTL}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func recordKey(key string) string {
	return keyPrefix + "record:" + key
}

func resultKey(url string) string {
	return keyPrefix + "result:" + utils.HashString(url)
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	return data, nil
}

// Put writes without expiry; durability follows the server's persistence settings.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, recordKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to put record %s: %w", key, err)
	}
	logger.Debug("Record stored", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, recordKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

func (c *Client) SetResult(ctx context.Context, url string, resp models.EnsembleResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	err = c.client.Set(ctx, resultKey(url), data, c.resultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set result cache: %w", err)
	}

	logger.Debug("Result cached", zap.String("url", url), zap.Duration("ttl", c.resultTTL))
	return nil
}

func (c *Client) GetResult(ctx context.Context, url string) (*models.EnsembleResponse, bool, error) {
	data, err := c.client.Get(ctx, resultKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get result cache: %w", err)
	}

	var resp models.EnsembleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	logger.Debug("Result cache hit", zap.String("url", url))
	return &resp, true, nil
}

func (c *Client) ClearResults(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"result:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Result cache cleared")
	return nil
}

// ResultStats counts live keys; redis expires entries itself, so total equals active.
func (c *Client) ResultStats(ctx context.Context) (cache.Stats, error) {
	count := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"result:*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return cache.Stats{}, fmt.Errorf("failed to iterate cache keys: %w", err)
	}
	return cache.Stats{
		TotalCached:  count,
		ActiveCached: count,
		TTLSeconds:   int(c.resultTTL / time.Second),
	}, nil
}

var (
	_ storage.Store     = (*Client)(nil)
	_ cache.ResultCache = (*Client)(nil)
)
