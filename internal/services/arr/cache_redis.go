package arr

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "putioarr:arr:history:"

// RedisCache stores history pages in Redis as JSON.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (HistoryPage, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return HistoryPage{}, false, nil
		}
		return HistoryPage{}, false, err
	}
	var page HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		return HistoryPage{}, false, err
	}
	return page, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, page HistoryPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
