package ztgate

import (
	"crypto/cipher"
	"sync"
	"time"

	"github.com/MrEthical07/ztgate/anomaly"
	"github.com/MrEthical07/ztgate/keystore"
	"github.com/MrEthical07/ztgate/policy"
)

// Gateway defines a public type used by ztgate APIs.
//
// Gateway instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Gateway struct {
	config   Config
	mu       sync.Mutex
	sessions map[string]*session

	keyStore  keystore.Store
	policy    *policy.Adapter
	inspector PacketInspector
	peers     PeerController
	scoring   ScoringModel
	audit     *auditDispatcher
	metrics   *Metrics
}

// session is the gateway-side state for one tunnel. All fields are guarded
// by Gateway.mu.
type session struct {
	id           string
	key          []byte
	aead         cipher.AEAD
	meta         map[string]any
	peerIdentity string

	createdAt   time.Time
	lastSeen    time.Time
	packetCount uint64
	byteCount   uint64

	suspendedUntil time.Time

	allowedIPs []string
	savedIPs   []string
	narrowed   bool

	detector *anomaly.Detector
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// PolicyAdapter describes the policyadapter operation and its observable behavior.
//
// PolicyAdapter may return an error when input validation, dependency calls, or security checks fail.
// PolicyAdapter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) PolicyAdapter() *policy.Adapter {
	if g == nil {
		return nil
	}
	return g.policy
}

func (g *Gateway) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (s *session) suspended(now time.Time) bool {
	return !s.suspendedUntil.IsZero() && now.Before(s.suspendedUntil)
}
