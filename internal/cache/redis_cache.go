package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/lshigami/examprep/config"
	"github.com/lshigami/examprep/internal/model"
)

// RedisCache keeps pending results under <namespace>:attempt_result:<id>.
// Entries have no TTL; they live until recovery confirms the write.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisClient(cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, namespace string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: namespace + ":attempt_result:"}
}

func (c *RedisCache) key(attemptID uint) string {
	return c.prefix + strconv.FormatUint(uint64(attemptID), 10)
}

func (c *RedisCache) Put(ctx context.Context, result *model.AttemptResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: encoding result %d: %w", result.AttemptID, err)
	}
	if err := c.rdb.Set(ctx, c.key(result.AttemptID), data, 0).Err(); err != nil {
		return fmt.Errorf("cache: storing result %d: %w", result.AttemptID, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, attemptID uint) (*model.AttemptResult, error) {
	data, err := c.rdb.Get(ctx, c.key(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: reading result %d: %w", attemptID, err)
	}
	var result model.AttemptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("cache: decoding result %d: %w", attemptID, err)
	}
	return &result, nil
}

func (c *RedisCache) Delete(ctx context.Context, attemptID uint) error {
	if err := c.rdb.Del(ctx, c.key(attemptID)).Err(); err != nil {
		return fmt.Errorf("cache: deleting result %d: %w", attemptID, err)
	}
	return nil
}

func (c *RedisCache) Keys(ctx context.Context) ([]uint, error) {
	var ids []uint
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := strconv.ParseUint(strings.TrimPrefix(iter.Val(), c.prefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scanning %s*: %w", c.prefix, err)
	}
	return ids, nil
}
