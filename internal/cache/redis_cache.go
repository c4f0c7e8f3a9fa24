package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	GatewayMessageID string    `json:"gatewayMessageId"`
	SentAt           time.Time `json:"sentAt"`
}

func (c *RedisCache) StoreSent(ctx context.Context, recordID, gatewayMessageID string, sentAt time.Time) error {
	key := fmt.Sprintf("lead_text:%s", recordID)
	val := sentValue{
		GatewayMessageID: gatewayMessageID,
		SentAt:           sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// FirstSeen records externalID and reports whether this call was the first to do so.
// An empty id is never deduplicated.
func (c *RedisCache) FirstSeen(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return true, nil
	}
	return c.rdb.SetNX(ctx, "inbound:"+externalID, 1, c.ttl).Result()
}

func (c *RedisCache) Forget(ctx context.Context, externalID string) error {
	if externalID == "" {
		return nil
	}
	return c.rdb.Del(ctx, "inbound:"+externalID).Err()
}
