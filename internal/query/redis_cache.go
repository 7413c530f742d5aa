package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/observability"
)

// RedisCache implements Cache on Redis.
//
// Each summary is a JSON string under summary:<kind>:<entity>:<ref>. A set
// under summary-keys:<kind>:<entity> indexes the reference times cached for
// the series so a new ledger can drop all of them.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

var _ Cache = (*RedisCache)(nil)

func summaryKey(key domain.SeriesKey, ref uint64) string {
	return "summary:" + key.String() + ":" + strconv.FormatUint(ref, 10)
}

func indexKey(key domain.SeriesKey) string {
	return "summary-keys:" + key.String()
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, bool, error) {
	data, err := c.client.Get(ctx, summaryKey(key, ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.WindowSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	observability.RecordCacheLookup(true)
	return &summary, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, summary *domain.WindowSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	key := summary.Key()
	entry := summaryKey(key, summary.ReferenceTimestamp)
	index := indexKey(key)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entry, data, ttl)
		pipe.SAdd(ctx, index, entry)
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	return err
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...domain.SeriesKey) error {
	for _, key := range keys {
		index := indexKey(key)
		entries, err := c.client.SMembers(ctx, index).Result()
		if err != nil {
			return fmt.Errorf("list cached summaries of %s: %w", key, err)
		}
		if err := c.client.Del(ctx, append(entries, index)...).Err(); err != nil {
			return fmt.Errorf("drop cached summaries of %s: %w", key, err)
		}
	}
	return nil
}
