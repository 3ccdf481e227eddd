package session

import (
	"context"
	"errors"
	"time"

	"chatterbox/internal/redis"
)

const redisSessionPrefix = "session:"

// RedisStore keeps sessions in redis so multiple instances share one session
// table. Expiry rides on the key TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps the shared redis client.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, token, username string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return r.client.Set(ctx, redisSessionPrefix+token, username, ttl)
}

func (r *RedisStore) Lookup(ctx context.Context, token string) (string, error) {
	username, err := r.client.Get(ctx, redisSessionPrefix+token)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", nil
		}
		return "", err
	}
	return username, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	err := r.client.Del(ctx, redisSessionPrefix+token)
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		return err
	}
	return nil
}
