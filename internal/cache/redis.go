package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is an alternative durable tier for deployments colocated with
// the platform's Redis. A zero TTL stores without expiry, matching the
// server-owned retention of the HTTP tier.
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStore wraps client as a durable tier. namespace defaults to
// "tutorcache".
func NewRedisStore(client goredis.UniversalClient, namespace string, ttl time.Duration) *RedisStore {
	if namespace == "" {
		namespace = "tutorcache"
	}
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStore) key(hash string) string { return s.namespace + ":" + hash }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, hash string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.Hash), data, s.ttl).Err()
}
