package ztgate

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/MrEthical07/ztgate/anomaly"
	"github.com/MrEthical07/ztgate/internal"
	"github.com/MrEthical07/ztgate/keystore"
)

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) CreateSession(ctx context.Context, params SessionParams) error {
	if g == nil || g.keyStore == nil {
		return ErrGatewayNotReady
	}
	if params.ID == "" {
		return ErrInvalidSessionID
	}
	if len(params.Key) > 0 && len(params.Key) != g.config.Crypto.KeySize {
		return ErrInvalidKeySize
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sessions[params.ID]; ok {
		g.emitAudit(ctx, auditEventSessionCreated, false, params.ID, ErrSessionExists, nil)
		return ErrSessionExists
	}

	key, err := g.resolveSessionKey(ctx, params.ID, params.Key)
	if err != nil {
		g.emitAudit(ctx, auditEventSessionCreated, false, params.ID, err, nil)
		return err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		g.emitAudit(ctx, auditEventSessionCreated, false, params.ID, ErrInvalidKeySize, nil)
		return ErrInvalidKeySize
	}

	peerIdentity := params.PeerIdentity
	if peerIdentity == "" {
		peerIdentity, err = internal.NewPeerIdentity()
		if err != nil {
			g.emitAudit(ctx, auditEventSessionCreated, false, params.ID, err, nil)
			return err
		}
	}

	now := time.Now()
	g.sessions[params.ID] = &session{
		id:           params.ID,
		key:          key,
		aead:         aead,
		meta:         cloneMeta(params.Meta),
		peerIdentity: peerIdentity,
		createdAt:    now,
		allowedIPs:   cloneStrings(params.AllowedIPs),
		detector:     anomaly.NewDetector(g.config.Anomaly.Alpha),
	}

	g.metricInc(MetricSessionCreated)
	g.emitAudit(ctx, auditEventSessionCreated, true, params.ID, nil, func() map[string]string {
		return map[string]string{
			"peer_identity": peerIdentity,
		}
	})

	return nil
}

// resolveSessionKey reuses a persisted key when the store has one; otherwise
// it generates and persists a fresh key. Caller holds g.mu.
func (g *Gateway) resolveSessionKey(ctx context.Context, sessionID string, provided []byte) ([]byte, error) {
	if len(provided) > 0 {
		key := cloneBytes(provided)
		if err := g.keyStore.SaveKey(ctx, sessionID, key); err != nil {
			return nil, err
		}
		return key, nil
	}

	key, err := g.keyStore.LoadKey(ctx, sessionID)
	switch {
	case err == nil:
		if len(key) != g.config.Crypto.KeySize {
			return nil, ErrInvalidKeySize
		}
		return key, nil
	case errors.Is(err, keystore.ErrKeyNotFound):
	default:
		return nil, err
	}

	key, err = internal.NewSessionKey(g.config.Crypto.KeySize)
	if err != nil {
		return nil, err
	}
	if err := g.keyStore.SaveKey(ctx, sessionID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// CloseSession describes the closesession operation and its observable behavior.
//
// CloseSession may return an error when input validation, dependency calls, or security checks fail.
// CloseSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) CloseSession(ctx context.Context, sessionID string) bool {
	if g == nil {
		return false
	}

	g.mu.Lock()
	_, ok := g.sessions[sessionID]
	if ok {
		delete(g.sessions, sessionID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}

	// Key removal is best-effort; a dangling sealed key cannot revive the
	// session and is cleaned up on the next create/close cycle.
	if err := g.keyStore.DeleteKey(ctx, sessionID); err != nil {
		log.Print("ztgate: session key removal failed on close")
	}

	g.metricInc(MetricSessionClosed)
	g.emitAudit(ctx, auditEventSessionClosed, true, sessionID, nil, nil)

	return true
}

// RekeySession describes the rekeysession operation and its observable behavior.
//
// RekeySession may return an error when input validation, dependency calls, or security checks fail.
// RekeySession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) RekeySession(ctx context.Context, sessionID string) (bool, error) {
	if g == nil || g.keyStore == nil {
		return false, ErrGatewayNotReady
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return false, nil
	}

	key, err := internal.NewSessionKey(g.config.Crypto.KeySize)
	if err != nil {
		g.emitAudit(ctx, auditEventSessionRekeyed, false, sessionID, err, nil)
		return true, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		g.emitAudit(ctx, auditEventSessionRekeyed, false, sessionID, ErrInvalidKeySize, nil)
		return true, ErrInvalidKeySize
	}
	if err := g.keyStore.SaveKey(ctx, sessionID, key); err != nil {
		g.emitAudit(ctx, auditEventSessionRekeyed, false, sessionID, err, nil)
		return true, err
	}

	// Traffic counters restart with the new key; the anomaly detector keeps
	// its learned baseline across rekeys.
	sess.key = key
	sess.aead = aead
	sess.packetCount = 0
	sess.byteCount = 0
	sess.lastSeen = time.Time{}

	g.metricInc(MetricSessionRekeyed)
	g.emitAudit(ctx, auditEventSessionRekeyed, true, sessionID, nil, nil)

	return true, nil
}

// SuspendSession describes the suspendsession operation and its observable behavior.
//
// SuspendSession may return an error when input validation, dependency calls, or security checks fail.
// SuspendSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) SuspendSession(ctx context.Context, sessionID string, until time.Time) bool {
	if g == nil {
		return false
	}

	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if ok {
		if until.IsZero() {
			until = time.Now().Add(g.config.Anomaly.SuspendDuration)
		}
		sess.suspendedUntil = until
	}
	g.mu.Unlock()

	if !ok {
		return false
	}

	g.metricInc(MetricSessionSuspended)
	g.emitAudit(ctx, auditEventSessionSuspended, true, sessionID, nil, func() map[string]string {
		return map[string]string{
			"suspended_until": until.UTC().Format(time.RFC3339),
		}
	})

	return true
}

// ResumeSession describes the resumesession operation and its observable behavior.
//
// ResumeSession may return an error when input validation, dependency calls, or security checks fail.
// ResumeSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) ResumeSession(sessionID string) bool {
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return false
	}
	sess.suspendedUntil = time.Time{}
	return true
}

// IsSuspended describes the issuspended operation and its observable behavior.
//
// IsSuspended may return an error when input validation, dependency calls, or security checks fail.
// IsSuspended does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) IsSuspended(sessionID string) bool {
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return false
	}
	return sess.suspended(time.Now())
}

// Sessions describes the sessions operation and its observable behavior.
//
// Sessions may return an error when input validation, dependency calls, or security checks fail.
// Sessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) Sessions() []string {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// SessionInfo describes the sessioninfo operation and its observable behavior.
//
// SessionInfo may return an error when input validation, dependency calls, or security checks fail.
// SessionInfo does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) SessionInfo(sessionID string) (SessionInfo, bool) {
	if g == nil {
		return SessionInfo{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}

	return SessionInfo{
		ID:             sess.id,
		CreatedAt:      sess.createdAt,
		LastSeen:       sess.lastSeen,
		PacketCount:    sess.packetCount,
		ByteCount:      sess.byteCount,
		SuspendedUntil: sess.suspendedUntil,
		AllowedIPs:     cloneStrings(sess.allowedIPs),
		PeerIdentity:   sess.peerIdentity,
		Anomaly:        sess.detector.Snapshot(),
	}, true
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMeta(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
