package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores one browser session's credential. The portal creates one per
// request, scoped by the session id carried in the browser cookie.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis returns a store for the browser session sid.
func NewRedis(client *redis.Client, sid string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: "lms:session:" + sid + ":" + StorageKey, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context) (string, bool, error) {
	tok, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, tok != "", nil
}

func (r *Redis) Set(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key, token, r.ttl).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Factory builds the store for a browser session id.
type Factory func(sid string) Store

// RedisFactory returns a Factory backed by client.
func RedisFactory(client *redis.Client, ttl time.Duration) Factory {
	return func(sid string) Store { return NewRedis(client, sid, ttl) }
}

// MemoryFactory keeps one in-memory store per session id. Useful in tests and
// single-instance development setups.
func MemoryFactory() Factory {
	stores := newMemoryMap()
	return stores.get
}
