package blobstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"storefront/exporter/internal/domain"
)

type redisStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

// NewRedisStore returns a Store backed by Redis string keys. Entries do
// not expire server-side; staleness is handled by the cache TTL check.
func NewRedisStore(redisClient *redis.Client) Store {
	return &redisStore{
		redisClient: redisClient,
		keyPrefix:   "storefront:blob:",
	}
}

func (s *redisStore) Load(ctx context.Context, namespace, key string) ([]byte, error) {
	val, err := s.redisClient.Get(ctx, s.key(namespace, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load blob %s/%s: %w", namespace, key, err)
	}
	return val, nil
}

func (s *redisStore) Save(ctx context.Context, namespace, key string, data []byte) error {
	if err := s.redisClient.Set(ctx, s.key(namespace, key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save blob %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *redisStore) key(namespace, key string) string {
	return s.keyPrefix + namespace + ":" + key
}
