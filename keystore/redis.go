package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ztk:"

// RedisStore defines a public type used by ztgate APIs.
//
// RedisStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	codec  codec
}

// NewRedisStore creates a key store that keeps sealed key payloads in Redis.
// Payloads are identical to [FileStore] payloads; the two backends are
// interchangeable per deployment.
func NewRedisStore(client redis.UniversalClient, prefix string, primary Sealer, extra ...Sealer) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, codec: newCodec(primary, extra...)}, nil
}

// SaveKey describes the savekey operation and its observable behavior.
//
// SaveKey may return an error when input validation, dependency calls, or security checks fail.
// SaveKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) SaveKey(ctx context.Context, sessionID string, key []byte) error {
	payload, err := s.codec.encode(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, payload, 0).Err(); err != nil {
		return fmt.Errorf("store key payload: %w", err)
	}
	return nil
}

// LoadKey describes the loadkey operation and its observable behavior.
//
// LoadKey may return an error when input validation, dependency calls, or security checks fail.
// LoadKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) LoadKey(ctx context.Context, sessionID string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch key payload: %w", err)
	}
	return s.codec.decode(strings.TrimSpace(payload))
}

// DeleteKey describes the deletekey operation and its observable behavior.
//
// DeleteKey may return an error when input validation, dependency calls, or security checks fail.
// DeleteKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) DeleteKey(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete key payload: %w", err)
	}
	return nil
}
