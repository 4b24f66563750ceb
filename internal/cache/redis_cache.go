package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lapakpos/terminal/internal/api"
)

type RedisSalesCache struct {
	client *redis.Client
}

func NewRedisSalesCache(addr string, password string, db int) *RedisSalesCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSalesCache{client: client}
}

func (c *RedisSalesCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSalesCache) Close() error {
	return c.client.Close()
}

func (c *RedisSalesCache) Get(ctx context.Context, key string) ([]api.Sale, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sales []api.Sale
	if err := json.Unmarshal([]byte(val), &sales); err != nil {
		return nil, false, err
	}
	return sales, true, nil
}

func (c *RedisSalesCache) Set(ctx context.Context, key string, sales []api.Sale, ttl time.Duration) error {
	payload, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
