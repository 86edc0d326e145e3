package ztgate

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/ztgate/keystore"
)

func newTestKeyStore(t *testing.T) keystore.Store {
	t.Helper()

	store, err := keystore.NewFileStore(t.TempDir(), keystore.InsecureSealer{})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func newTestGateway(t *testing.T, mutate func(*Builder)) *Gateway {
	t.Helper()

	b := New().WithKeyStore(newTestKeyStore(t))
	if mutate != nil {
		mutate(b)
	}

	gw, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gw.Close)

	return gw
}

func mustCreateSession(t *testing.T, gw *Gateway, id string) {
	t.Helper()
	if err := gw.CreateSession(context.Background(), SessionParams{ID: id}); err != nil {
		t.Fatalf("CreateSession(%q) failed: %v", id, err)
	}
}

func TestBuildRequiresKeyStore(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error when no key store is configured")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithKeyStore(newTestKeyStore(t))
	gw, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer gw.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build of the same builder")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Anomaly.Alpha = 1.5

	if _, err := New().WithConfig(cfg).WithKeyStore(newTestKeyStore(t)).Build(); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuildWithRedisRequiresSealingBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := New().WithRedis(client).Build()
	if !errors.Is(err, keystore.ErrNoSecureBackend) {
		t.Fatalf("expected ErrNoSecureBackend, got %v", err)
	}
}

func TestBuildWithRedisAndMasterSecret(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := defaultConfig()
	cfg.Crypto.MasterSecret = []byte("fleet-master-secret")

	gw, err := New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer gw.Close()

	mustCreateSession(t, gw, "redis-backed")

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one persisted key in redis, got %v", keys)
	}
}

func TestNilGatewaySafeAccessors(t *testing.T) {
	var gw *Gateway

	if gw.IsSuspended("x") {
		t.Fatal("nil gateway reported a suspended session")
	}
	if gw.CloseSession(context.Background(), "x") {
		t.Fatal("nil gateway closed a session")
	}
	if got := gw.Sessions(); got != nil {
		t.Fatalf("expected nil session list, got %v", got)
	}
	if gw.AuditDropped() != 0 {
		t.Fatal("nil gateway reported dropped audit events")
	}
	snap := gw.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatal("nil gateway reported counters")
	}
}
