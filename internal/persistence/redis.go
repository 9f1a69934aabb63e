package persistence

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"treasury-reconciler/pkg/errors"
)

// DefaultRedisPrefix namespaces keys written by the reconciler
const DefaultRedisPrefix = "reconciler:"

// RedisStore keeps values as plain Redis strings without expiry
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects using a redis:// URL
func NewRedisStoreFromURL(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.ConfigurationError("storage.redis_url", url, err)
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return NewRedisStore(redis.NewClient(opts), prefix), nil
}

// Ping checks connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Persistence("ping", r.prefix, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Persistence("load", r.prefix+key, err)
	}
	return val, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return errors.Persistence("save", r.prefix+key, err)
	}
	return nil
}

// Close closes the underlying client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
