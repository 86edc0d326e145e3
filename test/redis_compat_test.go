//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	ztgate "github.com/MrEthical07/ztgate"
	"github.com/MrEthical07/ztgate/keystore"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// TestRedisCompat_KeyLifecycle validates the sealed key store round trip
// across backends.
func TestRedisCompat_KeyLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			store, err := keystore.NewRedisStore(rdb, "ztk:", keystore.NewMasterSealer([]byte("integration-master-secret")))
			if err != nil {
				t.Fatalf("redis store: %v", err)
			}
			ctx := context.Background()

			key := bytes.Repeat([]byte{0x42}, 32)
			if err := store.SaveKey(ctx, "sess-life", key); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.LoadKey(ctx, "sess-life")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !bytes.Equal(got, key) {
				t.Fatal("loaded key does not match saved key")
			}

			// The persisted payload must never contain the raw key.
			raw, err := rdb.Get(ctx, "ztk:sess-life").Result()
			if err != nil {
				t.Fatalf("raw get: %v", err)
			}
			if strings.Contains(raw, string(key)) {
				t.Fatal("raw key material leaked into the store")
			}

			if err := store.DeleteKey(ctx, "sess-life"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.LoadKey(ctx, "sess-life"); !errors.Is(err, keystore.ErrKeyNotFound) {
				t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
			}

			// Delete is idempotent.
			if err := store.DeleteKey(ctx, "sess-life"); err != nil {
				t.Fatalf("second delete should be idempotent: %v", err)
			}
		})
	}
}

// TestRedisCompat_SealerMismatchFailsClosed validates that a store with
// the wrong master secret cannot unseal persisted keys.
func TestRedisCompat_SealerMismatchFailsClosed(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ctx := context.Background()

			writer, err := keystore.NewRedisStore(rdb, "ztk:", keystore.NewMasterSealer([]byte("secret-a")))
			if err != nil {
				t.Fatalf("writer store: %v", err)
			}
			if err := writer.SaveKey(ctx, "sess-seal", bytes.Repeat([]byte{0x07}, 32)); err != nil {
				t.Fatalf("save: %v", err)
			}

			reader, err := keystore.NewRedisStore(rdb, "ztk:", keystore.NewMasterSealer([]byte("secret-b")))
			if err != nil {
				t.Fatalf("reader store: %v", err)
			}
			if _, err := reader.LoadKey(ctx, "sess-seal"); err == nil {
				t.Fatal("expected unseal failure with mismatched master secret")
			}
		})
	}
}

// TestRedisCompat_GatewayKeyContinuity validates that a ciphertext sealed
// by one gateway instance decrypts on a second instance sharing the same
// Redis key store, the restart/failover scenario.
func TestRedisCompat_GatewayKeyContinuity(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ctx := context.Background()
			cfg := ztgate.DefaultConfig()
			cfg.Crypto.MasterSecret = []byte("integration-master-secret")

			first, err := ztgate.New().WithConfig(cfg).WithRedis(rdb).Build()
			if err != nil {
				t.Fatalf("first gateway: %v", err)
			}
			defer first.Close()

			if err := first.CreateSession(ctx, ztgate.SessionParams{ID: "sess-cont"}); err != nil {
				t.Fatalf("create session: %v", err)
			}
			payload := []byte("survives failover")
			blob, err := first.EncryptForSession(ctx, "sess-cont", payload, nil)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}

			second, err := ztgate.New().WithConfig(cfg).WithRedis(rdb).Build()
			if err != nil {
				t.Fatalf("second gateway: %v", err)
			}
			defer second.Close()

			// Same session ID with no key material reuses the persisted key.
			if err := second.CreateSession(ctx, ztgate.SessionParams{ID: "sess-cont"}); err != nil {
				t.Fatalf("recreate session: %v", err)
			}
			got, err := second.DecryptForSession(ctx, "sess-cont", blob, nil)
			if err != nil {
				t.Fatalf("decrypt on second gateway: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("plaintext mismatch across gateway instances")
			}
		})
	}
}
