package policy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAdapter(t *testing.T, cfg Config, engine *EngineClient, hw HardwareAttestor) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(cfg, engine, hw)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	return adapter
}

type fakeAttestor struct {
	att HardwareAttestation
	err error
}

func (f *fakeAttestor) Attest(context.Context, map[string]any) (HardwareAttestation, error) {
	return f.att, f.err
}

func policyEngineServer(t *testing.T, result map[string]any, status int) *EngineClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/data/ztgate/authz" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			body := map[string]any{"result": result}
			if result == nil {
				body = map[string]any{}
			}
			if err := writeJSON(w, body); err != nil {
				t.Errorf("write response: %v", err)
			}
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewEngineClient(srv.URL, "ztgate/authz", time.Second)
	if err != nil {
		t.Fatalf("NewEngineClient failed: %v", err)
	}
	return client
}

func TestMicrosegAdminBypass(t *testing.T) {
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, nil, nil)

	// Admin bypasses even destinations outside every configured CIDR.
	d := adapter.EnforceMicrosegmentation(context.Background(), map[string]any{"role": "admin"}, "203.0.113.9", "")
	if !d.Allowed || d.Reason != "admin_bypass" {
		t.Fatalf("decision = %+v, want admin bypass", d)
	}
}

func TestMicrosegCIDRContainment(t *testing.T) {
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, nil, nil)

	d := adapter.EnforceMicrosegmentation(context.Background(), nil, "10.1.2.3", "")
	if !d.Allowed || d.Reason != "cidr_allowed" {
		t.Fatalf("in-range decision = %+v", d)
	}

	d = adapter.EnforceMicrosegmentation(context.Background(), nil, "192.168.1.5", "")
	if d.Allowed || d.Reason != "cidr_denied" {
		t.Fatalf("out-of-range decision = %+v", d)
	}
}

func TestMicrosegInvalidDestinationDenied(t *testing.T) {
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, nil, nil)

	d := adapter.EnforceMicrosegmentation(context.Background(), nil, "not-an-address", "")
	if d.Allowed || d.Reason != "invalid_destination" {
		t.Fatalf("decision = %+v, want invalid_destination deny", d)
	}
}

func TestMicrosegSegmentMembership(t *testing.T) {
	adapter := newTestAdapter(t, Config{}, nil, nil)

	meta := map[string]any{
		"allowed_segments": []string{"db", "metrics"},
		"dest_segment":     "db",
	}
	if d := adapter.EnforceMicrosegmentation(context.Background(), meta, "10.0.0.1", ""); !d.Allowed || d.Reason != "segment_allowed" {
		t.Fatalf("decision = %+v, want segment_allowed", d)
	}

	meta["dest_segment"] = "internet"
	if d := adapter.EnforceMicrosegmentation(context.Background(), meta, "10.0.0.1", ""); d.Allowed || d.Reason != "segment_denied" {
		t.Fatalf("decision = %+v, want segment_denied", d)
	}
}

func TestMicrosegNoDestinationAllows(t *testing.T) {
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, nil, nil)

	d := adapter.EnforceMicrosegmentation(context.Background(), nil, "", "")
	if !d.Allowed || d.Reason != "no_dest_specified" {
		t.Fatalf("decision = %+v, want no_dest_specified allow", d)
	}
}

func TestMicrosegDefaultDeny(t *testing.T) {
	adapter := newTestAdapter(t, Config{}, nil, nil)

	d := adapter.EnforceMicrosegmentation(context.Background(), map[string]any{"role": "user"}, "198.51.100.1", "tcp")
	if d.Allowed || d.Reason != "default_deny" {
		t.Fatalf("decision = %+v, want default_deny", d)
	}
}

func TestMicrosegRemoteEngineDecisionWins(t *testing.T) {
	engine := policyEngineServer(t, map[string]any{"allowed": false, "reason": "blocked_by_policy"}, http.StatusOK)
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, engine, nil)

	// The engine's deny wins even though the CIDR chain would have allowed.
	d := adapter.EnforceMicrosegmentation(context.Background(), nil, "10.1.2.3", "tcp")
	if d.Allowed || d.Reason != "blocked_by_policy" {
		t.Fatalf("decision = %+v, want engine deny", d)
	}
}

func TestMicrosegEngineOutageFallsThrough(t *testing.T) {
	engine := policyEngineServer(t, nil, http.StatusInternalServerError)
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, engine, nil)

	if d := adapter.EnforceMicrosegmentation(context.Background(), nil, "10.1.2.3", ""); !d.Allowed || d.Reason != "cidr_allowed" {
		t.Fatalf("decision = %+v, want CIDR fallback allow", d)
	}

	// With no local fallback evidence, an engine outage must end in deny.
	bare := newTestAdapter(t, Config{}, engine, nil)
	if d := bare.EnforceMicrosegmentation(context.Background(), nil, "10.1.2.3", ""); d.Allowed || d.Reason != "default_deny" {
		t.Fatalf("decision = %+v, want fail-closed default_deny", d)
	}
}

func TestMicrosegEngineDecisionWithoutAllowedFieldFallsThrough(t *testing.T) {
	engine := policyEngineServer(t, map[string]any{"note": "no allowed field"}, http.StatusOK)
	adapter := newTestAdapter(t, Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, engine, nil)

	if d := adapter.EnforceMicrosegmentation(context.Background(), nil, "10.9.9.9", ""); !d.Allowed || d.Reason != "cidr_allowed" {
		t.Fatalf("decision = %+v, want CIDR fallback", d)
	}
}

func TestAttestHardwareCollaboratorWins(t *testing.T) {
	hw := &fakeAttestor{att: HardwareAttestation{Attested: true, DeviceID: "tpm-42"}}
	adapter := newTestAdapter(t, Config{}, nil, hw)

	result := adapter.AttestDevice(context.Background(), map[string]any{"vendor": "whoever"})
	if !result.Attested || result.Score != 1.0 || result.DeviceID != "tpm-42" {
		t.Fatalf("result = %+v, want hardware attestation", result)
	}
}

func TestAttestHardwareFailureFallsThrough(t *testing.T) {
	hw := &fakeAttestor{err: errors.New("tpm offline")}
	adapter := newTestAdapter(t, Config{TrustedVendors: []string{"acme"}}, nil, hw)

	result := adapter.AttestDevice(context.Background(), map[string]any{
		"secure_boot":    true,
		"patch_age_days": 10,
		"vendor":         "ACME",
	})
	if !result.Attested || result.Score != 1.0 {
		t.Fatalf("result = %+v, want heuristic full score", result)
	}
}

func TestAttestRemoteEngineDecisionPassesThrough(t *testing.T) {
	engine := policyEngineServer(t, map[string]any{
		"allowed": true,
		"score":   0.85,
		"reasons": []any{"mdm_enrolled"},
	}, http.StatusOK)
	adapter := newTestAdapter(t, Config{}, engine, nil)

	result := adapter.AttestDevice(context.Background(), map[string]any{"device_id": "d1"})
	if !result.Attested || result.Score != 0.85 {
		t.Fatalf("result = %+v, want engine pass-through", result)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "mdm_enrolled" {
		t.Fatalf("reasons = %v", result.Reasons)
	}
}

func TestAttestHeuristicScoring(t *testing.T) {
	adapter := newTestAdapter(t, Config{TrustedVendors: []string{"acme"}}, nil, nil)

	cases := []struct {
		name     string
		info     map[string]any
		score    float64
		attested bool
	}{
		{"nothing", map[string]any{}, 0, false},
		{"secure boot only", map[string]any{"secure_boot": true}, 0.4, false},
		{"secure boot and fresh patch", map[string]any{"secure_boot": true, "patch_age_days": 5}, 0.8, true},
		{"stale-ish patch", map[string]any{"secure_boot": true, "patch_age_days": 60}, 0.6, true},
		{"ancient patch", map[string]any{"secure_boot": true, "patch_age_days": 700}, 0.4, false},
		{"vendor only", map[string]any{"vendor": "acme"}, 0.2, false},
		{"everything clamps to one", map[string]any{"secure_boot": true, "patch_age_days": 1, "vendor": "Acme"}, 1.0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := adapter.AttestDevice(context.Background(), tc.info)
			if result.Score != tc.score || result.Attested != tc.attested {
				t.Fatalf("result = %+v, want score %v attested %v", result, tc.score, tc.attested)
			}
		})
	}
}

func TestNewAdapterRejectsBadCIDR(t *testing.T) {
	if _, err := NewAdapter(Config{AllowedCIDRs: []string{"10.0.0.0/33"}}, nil, nil); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}
