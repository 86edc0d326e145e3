//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ztgate "github.com/MrEthical07/ztgate"
	"github.com/MrEthical07/ztgate/keystore"
)

func newIntegrationKeyStore(t *testing.T) keystore.Store {
	t.Helper()

	store, err := keystore.NewFileStore(t.TempDir(), keystore.InsecureSealer{})
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return store
}

func newIntegrationGateway(t *testing.T, mutate func(*ztgate.Builder)) *ztgate.Gateway {
	t.Helper()

	b := ztgate.New().WithKeyStore(newIntegrationKeyStore(t))
	if mutate != nil {
		mutate(b)
	}

	gw, err := b.Build()
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	t.Cleanup(gw.Close)
	return gw
}

// newPolicyEngineServer serves a fixed decision document in the remote
// policy engine's wire shape: {"result": {...}}.
func newPolicyEngineServer(t *testing.T, result map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustCreateFlowSession(t *testing.T, gw *ztgate.Gateway, id string, meta map[string]any, allowedIPs []string) {
	t.Helper()

	err := gw.CreateSession(context.Background(), ztgate.SessionParams{
		ID:         id,
		Meta:       meta,
		AllowedIPs: allowedIPs,
	})
	if err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
}

func sealPacket(t *testing.T, gw *ztgate.Gateway, id string, payload []byte) []byte {
	t.Helper()

	blob, err := gw.EncryptForSession(context.Background(), id, payload, nil)
	if err != nil {
		t.Fatalf("encrypt for %s: %v", id, err)
	}
	return blob
}
