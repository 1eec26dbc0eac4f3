// Package storage is a small Redis-backed key-value surface for
// plugins and embedding applications: rate counters, feature flags and
// other ephemeral state that does not belong in the ledger schema.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// KV misses surface as CodeNotFound so callers use the same error
// handling as the rest of the module.
type KV struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) (*KV, error) {
	if client == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "storage: redis client is required")
	}
	if prefix == "" {
		prefix = "summa:kv:"
	}
	return &KV{client: client, prefix: prefix}, nil
}

func (s *KV) key(k string) string { return s.prefix + k }

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.Newf(errs.CodeNotFound, "key %q not found", key)
		}
		return nil, errs.Wrap(errs.CodeInternal, "kv get", err)
	}
	return v, nil
}

// Set stores value under key. A zero ttl means no expiry.
func (s *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errs.Wrap(errs.CodeInternal, "kv set", err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errs.Wrap(errs.CodeInternal, "kv delete", err)
	}
	return nil
}

// Increment atomically adds delta to the counter at key and returns the
// new value.
func (s *KV) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, s.key(key), delta).Result()
	if err != nil {
		return 0, errs.Wrap(errs.CodeInternal, "kv increment", err)
	}
	return n, nil
}

// IncrementWithTTL increments and stamps the key's expiry on first
// write, the shape rate limiters want.
func (s *KV) IncrementWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, k, delta)
	pipe.ExpireNX(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errs.Wrap(errs.CodeInternal, "kv increment with ttl", err)
	}
	return incr.Val(), nil
}

func (s *KV) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errs.Wrap(errs.CodeInternal, "redis ping", err)
	}
	return nil
}
