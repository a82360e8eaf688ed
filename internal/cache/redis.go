package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "spcal:"

// redisClient is the subset of *redis.Client the store needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores bodies as plain string values with a TTL.
type Redis struct {
	client redisClient
	ttl    time.Duration
}

// NewRedis wraps client. A ttl of zero keeps entries forever.
func NewRedis(client redisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	body, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return body, nil
}

func (r *Redis) Save(ctx context.Context, key string, body []byte) error {
	return r.client.Set(ctx, redisKeyPrefix+key, body, r.ttl).Err()
}

func (r *Redis) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
