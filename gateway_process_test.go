package ztgate

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/MrEthical07/ztgate/dpi"
	"github.com/MrEthical07/ztgate/policy"
)

type scriptedScorer struct {
	scores []float64
	calls  int
	err    error
}

func (s *scriptedScorer) Score(context.Context, string, float64) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	score := s.scores[s.calls%len(s.scores)]
	s.calls++
	return score, nil
}

type recordingPeers struct {
	calls [][]string
	err   error
}

func (p *recordingPeers) AddPeer(_ context.Context, _, _ string, allowedIPs []string) error {
	p.calls = append(p.calls, allowedIPs)
	return p.err
}

type staticInspector struct {
	verdict dpi.Verdict
}

func (i staticInspector) VerdictForPacket([]byte) dpi.Verdict {
	return i.verdict
}

func processPlaintext(t *testing.T, gw *Gateway, sessionID string, p []byte, dest string) (*ProcessResult, error) {
	t.Helper()
	blob, err := gw.EncryptForSession(context.Background(), sessionID, p, nil)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	return gw.ProcessIncoming(context.Background(), sessionID, blob, nil, dest)
}

func TestProcessIncomingDecryptsAndCounts(t *testing.T) {
	gw := newTestGateway(t, nil)
	mustCreateSession(t, gw, "s1")

	res, err := processPlaintext(t, gw, "s1", []byte("first packet"), "")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !bytes.Equal(res.Plaintext, []byte("first packet")) {
		t.Fatalf("plaintext mismatch: %q", res.Plaintext)
	}
	if res.Action != nil {
		t.Fatalf("unexpected action on warmup packet: %+v", res.Action)
	}

	info, _ := gw.SessionInfo("s1")
	if info.PacketCount != 1 || info.ByteCount != uint64(len("first packet")) {
		t.Fatalf("counters wrong: %+v", info)
	}
	if info.LastSeen.IsZero() {
		t.Fatal("last-seen not updated")
	}
	if info.Anomaly.Count != 1 {
		t.Fatalf("detector not fed: %+v", info.Anomaly)
	}
}

func TestProcessAnomalyAutoSuspend(t *testing.T) {
	gw := newTestGateway(t, func(b *Builder) {
		b.WithScoringModel(&scriptedScorer{scores: []float64{10.0}})
	})
	mustCreateSession(t, gw, "s1")

	// Sealed before the suspension lands; the gate rejects it afterwards.
	nextBlob, err := gw.EncryptForSession(context.Background(), "s1", []byte("next"), nil)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	res, err := processPlaintext(t, gw, "s1", []byte("burst"), "")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Action == nil || !res.Action.Suspended {
		t.Fatalf("expected auto-suspension, got %+v", res.Action)
	}
	if res.Action.SuspendedUntil.IsZero() {
		t.Fatal("suspension deadline missing")
	}
	if !gw.IsSuspended("s1") {
		t.Fatal("session not suspended after anomaly")
	}

	if _, err := gw.ProcessIncoming(context.Background(), "s1", nextBlob, nil, ""); !errors.Is(err, ErrSessionSuspended) {
		t.Fatalf("expected ErrSessionSuspended on follow-up, got %v", err)
	}
	if got := gw.MetricsSnapshot().Counters[MetricAnomalySuspend]; got != 1 {
		t.Fatalf("anomaly suspend counter = %d", got)
	}
}

func TestProcessNarrowAndRestore(t *testing.T) {
	peers := &recordingPeers{}
	scorer := &scriptedScorer{scores: []float64{7.0, 7.5, 0.5, 0.5}}

	cfg := defaultConfig()
	cfg.Anomaly.AnomalyThreshold = 100 // isolate narrowing from suspension
	gw := newTestGateway(t, func(b *Builder) {
		b.WithConfig(cfg).WithScoringModel(scorer).WithPeerController(peers)
	})

	original := []string{"10.0.0.0/8", "192.168.0.0/16"}
	if err := gw.CreateSession(context.Background(), SessionParams{ID: "s1", AllowedIPs: original}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	res, err := processPlaintext(t, gw, "s1", []byte("p1"), "10.1.2.3")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Action == nil || !res.Action.ACLNarrowed {
		t.Fatalf("expected narrowing, got %+v", res.Action)
	}
	if !reflect.DeepEqual(res.Action.NarrowedTo, []string{"10.1.2.3/32"}) {
		t.Fatalf("narrowed to %v", res.Action.NarrowedTo)
	}

	// Repeated narrowing must not clobber the saved ACL.
	if _, err := processPlaintext(t, gw, "s1", []byte("p2"), "10.9.9.9"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	res, err = processPlaintext(t, gw, "s1", []byte("p3"), "10.1.2.3")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Action == nil || !res.Action.ACLRestored {
		t.Fatalf("expected restore, got %+v", res.Action)
	}
	if !reflect.DeepEqual(res.Action.RestoredTo, original) {
		t.Fatalf("restored to %v, want %v", res.Action.RestoredTo, original)
	}

	info, _ := gw.SessionInfo("s1")
	if !reflect.DeepEqual(info.AllowedIPs, original) {
		t.Fatalf("live ACL after restore = %v", info.AllowedIPs)
	}

	// A later low score with nothing saved is a no-op.
	res, err = processPlaintext(t, gw, "s1", []byte("p4"), "10.1.2.3")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Action != nil {
		t.Fatalf("unexpected action without saved ACL: %+v", res.Action)
	}

	if len(peers.calls) != 3 {
		t.Fatalf("expected 3 peer controller syncs, got %d", len(peers.calls))
	}
}

func TestProcessNarrowFallbackWithoutDestination(t *testing.T) {
	cfg := defaultConfig()
	cfg.Anomaly.AnomalyThreshold = 100
	gw := newTestGateway(t, func(b *Builder) {
		b.WithConfig(cfg).WithScoringModel(&scriptedScorer{scores: []float64{8.0}})
	})
	mustCreateSession(t, gw, "s1")

	res, err := processPlaintext(t, gw, "s1", []byte("p"), "")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Action == nil || !res.Action.ACLNarrowed {
		t.Fatalf("expected narrowing, got %+v", res.Action)
	}
	if !reflect.DeepEqual(res.Action.NarrowedTo, []string{cfg.ACL.FallbackNarrowCIDR}) {
		t.Fatalf("expected fallback rule, got %v", res.Action.NarrowedTo)
	}
}

func TestProcessPolicyDenySuspends(t *testing.T) {
	adapter, err := policy.NewAdapter(policy.Config{}, nil, nil)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	gw := newTestGateway(t, func(b *Builder) {
		b.WithPolicyAdapter(adapter)
	})
	mustCreateSession(t, gw, "s1")

	// No CIDRs, no segments, no engine: the chain falls to default deny.
	res, err := processPlaintext(t, gw, "s1", []byte("lateral"), "172.16.0.9")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if res == nil || res.Action == nil || !res.Action.Suspended {
		t.Fatalf("policy deny must suspend, got %+v", res)
	}
	if res.Plaintext != nil {
		t.Fatal("plaintext leaked on policy deny")
	}
	if !gw.IsSuspended("s1") {
		t.Fatal("session not suspended after policy deny")
	}
	if got := gw.MetricsSnapshot().Counters[MetricPolicyDenied]; got != 1 {
		t.Fatalf("policy denied counter = %d", got)
	}
}

func TestProcessPolicyAllowsConfiguredCIDR(t *testing.T) {
	adapter, err := policy.NewAdapter(policy.Config{AllowedCIDRs: []string{"10.0.0.0/8"}}, nil, nil)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	gw := newTestGateway(t, func(b *Builder) {
		b.WithPolicyAdapter(adapter)
	})
	mustCreateSession(t, gw, "s1")

	if _, err := processPlaintext(t, gw, "s1", []byte("east-west"), "10.2.3.4"); err != nil {
		t.Fatalf("expected allow for configured CIDR, got %v", err)
	}
}

func TestProcessScoringFallback(t *testing.T) {
	gw := newTestGateway(t, func(b *Builder) {
		b.WithScoringModel(&scriptedScorer{err: errors.New("model offline")})
	})
	mustCreateSession(t, gw, "s1")

	res, err := processPlaintext(t, gw, "s1", []byte("p"), "")
	if err != nil {
		t.Fatalf("scoring failure must not surface: %v", err)
	}
	if res.AnomalyScore != 0 {
		t.Fatalf("expected warmup local score 0, got %v", res.AnomalyScore)
	}
	if got := gw.MetricsSnapshot().Counters[MetricScoringFallback]; got != 1 {
		t.Fatalf("scoring fallback counter = %d", got)
	}
}

func TestProcessDPIDrop(t *testing.T) {
	drop := dpi.Verdict{Verdict: dpi.VerdictDrop, Matches: []int{7}}
	gw := newTestGateway(t, func(b *Builder) {
		b.WithInspector(staticInspector{verdict: drop})
	})
	mustCreateSession(t, gw, "s1")

	res, err := processPlaintext(t, gw, "s1", []byte("GET /etc/passwd"), "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied on DPI drop, got %v", err)
	}
	if res == nil || res.Verdict == nil || res.Verdict.Verdict != dpi.VerdictDrop {
		t.Fatalf("verdict missing from result: %+v", res)
	}
	if res.Plaintext != nil {
		t.Fatal("plaintext leaked on DPI drop")
	}
	if got := gw.MetricsSnapshot().Counters[MetricDPIDrop]; got != 1 {
		t.Fatalf("dpi drop counter = %d", got)
	}
}

func TestPeerControllerFailureIsBestEffort(t *testing.T) {
	peers := &recordingPeers{err: errors.New("wg device gone")}
	cfg := defaultConfig()
	cfg.Anomaly.AnomalyThreshold = 100
	gw := newTestGateway(t, func(b *Builder) {
		b.WithConfig(cfg).WithScoringModel(&scriptedScorer{scores: []float64{9.0}}).WithPeerController(peers)
	})
	mustCreateSession(t, gw, "s1")

	res, err := processPlaintext(t, gw, "s1", []byte("p"), "10.0.0.1")
	if err != nil {
		t.Fatalf("peer controller failure must not surface: %v", err)
	}
	if res.Action == nil || !res.Action.ACLNarrowed {
		t.Fatalf("narrowing lost on peer failure: %+v", res.Action)
	}
	if got := gw.MetricsSnapshot().Counters[MetricPeerControlFailure]; got != 1 {
		t.Fatalf("peer control failure counter = %d", got)
	}
}
