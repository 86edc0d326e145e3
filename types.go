package ztgate

import (
	"context"
	"time"

	"github.com/MrEthical07/ztgate/anomaly"
	"github.com/MrEthical07/ztgate/dpi"
)

// SessionParams describes one session at creation time.
//
//	Docs: docs/sessions.md
type SessionParams struct {
	// ID is the unique session key among live sessions.
	ID string
	// Key is optional key material; when nil the gateway reuses a persisted
	// key if one exists, otherwise generates a fresh one.
	Key []byte
	// Meta carries policy-visible session attributes (role, allowed_segments,
	// dest_segment, device claims).
	Meta map[string]any
	// AllowedIPs is the session's initial network ACL.
	AllowedIPs []string
	// PeerIdentity is an opaque peer handle pushed to the peer controller;
	// generated when empty.
	PeerIdentity string
}

// SessionInfo is a point-in-time snapshot of one live session. Key material
// is never part of the snapshot.
type SessionInfo struct {
	ID             string
	CreatedAt      time.Time
	LastSeen       time.Time // zero when no traffic has been processed
	PacketCount    uint64
	ByteCount      uint64
	SuspendedUntil time.Time // zero when not suspended
	AllowedIPs     []string
	PeerIdentity   string
	Anomaly        anomaly.Snapshot
}

// ProcessAction records the policy consequences of one processed unit.
type ProcessAction struct {
	Suspended      bool
	SuspendedUntil time.Time
	ACLNarrowed    bool
	NarrowedTo     []string
	ACLRestored    bool
	RestoredTo     []string
}

// ProcessResult is returned by [Gateway.ProcessIncoming] on success.
//
//	Docs: docs/processing.md
type ProcessResult struct {
	Plaintext    []byte
	AnomalyScore float64
	// Verdict is present when a DPI delegate is configured.
	Verdict *dpi.Verdict
	// Action is present when processing changed session state beyond counters.
	Action *ProcessAction
}

// ScoringModel is an optional pluggable anomaly scorer. The statistical
// detector remains the baseline: it is always updated, and any model failure
// degrades to the detector's score without surfacing to callers.
type ScoringModel interface {
	Score(ctx context.Context, sessionID string, rate float64) (float64, error)
}

// PeerController is the capability interface for the peer/ACL control
// collaborator (a WireGuard-style control plane). Calls are best-effort:
// the gateway logs failures and never fails the decrypt path on them.
type PeerController interface {
	AddPeer(ctx context.Context, sessionID, publicKey string, allowedIPs []string) error
}

// PacketInspector is the DPI delegate consulted with decrypted payload bytes.
// [dpi.Engine] satisfies it; remote deployments can adapt the verdict socket.
type PacketInspector interface {
	VerdictForPacket(packet []byte) dpi.Verdict
}
