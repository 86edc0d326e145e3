package ztgate

import (
	"context"
	"time"

	"github.com/MrEthical07/ztgate/dpi"
)

// ProcessIncoming describes the processincoming operation and its observable behavior.
//
// ProcessIncoming may return an error when input validation, dependency calls, or security checks fail.
// ProcessIncoming does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) ProcessIncoming(ctx context.Context, sessionID string, blob, aad []byte, destIP string) (*ProcessResult, error) {
	if g == nil {
		return nil, ErrGatewayNotReady
	}
	if g.metrics != nil && g.metrics.Enabled() {
		start := time.Now()
		defer func() { g.metrics.Observe(MetricProcessLatency, time.Since(start)) }()
	}

	plaintext, err := g.DecryptForSession(ctx, sessionID, blob, aad)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Plaintext: plaintext}

	rate, meta, ok := g.recordTraffic(sessionID, len(plaintext))
	if !ok {
		return nil, ErrSessionNotFound
	}

	score := g.scoreRate(ctx, sessionID, rate)
	result.AnomalyScore = score

	var action ProcessAction

	if score > g.config.Anomaly.AnomalyThreshold {
		if until, ok := g.suspendLocked(sessionID); ok {
			action.Suspended = true
			action.SuspendedUntil = until
			g.metricInc(MetricAnomalySuspend)
			g.metricInc(MetricSessionSuspended)
			g.emitAudit(ctx, auditEventAnomalySuspend, false, sessionID, nil, func() map[string]string {
				return map[string]string{
					"suspended_until": until.UTC().Format(time.RFC3339),
				}
			})
		}
	}

	// Micro-segmentation is fail-closed: a deny suspends the session and
	// surfaces as a policy error, never a silent drop.
	if g.policy != nil && destIP != "" {
		decision := g.policy.EnforceMicrosegmentation(ctx, meta, destIP, "")
		if !decision.Allowed {
			if until, ok := g.suspendLocked(sessionID); ok {
				action.Suspended = true
				action.SuspendedUntil = until
			}
			g.metricInc(MetricPolicyDenied)
			g.metricInc(MetricSessionSuspended)
			g.emitAudit(ctx, auditEventPolicyDenied, false, sessionID, ErrPermissionDenied, func() map[string]string {
				return map[string]string{
					"reason":  decision.Reason,
					"dest_ip": destIP,
				}
			})
			result.Action = &action
			result.Plaintext = nil
			return result, ErrPermissionDenied
		}
	}

	if g.inspector != nil {
		verdict := g.inspector.VerdictForPacket(plaintext)
		result.Verdict = &verdict
		if verdict.Verdict == dpi.VerdictDrop {
			g.metricInc(MetricDPIDrop)
			g.emitAudit(ctx, auditEventDPIDrop, false, sessionID, ErrPermissionDenied, func() map[string]string {
				return map[string]string{
					"dest_ip": destIP,
				}
			})
			result.Action = &action
			result.Plaintext = nil
			return result, ErrPermissionDenied
		}
	}

	g.applyACLTransitions(ctx, sessionID, score, destIP, &action)

	if action.Suspended || action.ACLNarrowed || action.ACLRestored {
		result.Action = &action
	}

	return result, nil
}

// recordTraffic bumps the session counters and derives the inter-arrival
// packet rate fed to the anomaly detector.
func (g *Gateway) recordTraffic(sessionID string, size int) (float64, map[string]any, bool) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return 0, nil, false
	}

	var rate float64
	if sess.lastSeen.IsZero() {
		rate = float64(sess.packetCount + 1)
	} else {
		dt := now.Sub(sess.lastSeen).Seconds()
		if dt <= 0 {
			dt = 1e-9
		}
		rate = 1 / dt
	}

	sess.packetCount++
	sess.byteCount += uint64(size)
	sess.lastSeen = now

	meta := cloneMeta(sess.meta)
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	meta["peer_identity"] = sess.peerIdentity

	return rate, meta, true
}

// scoreRate always feeds the local detector so its baseline keeps learning,
// then prefers the external scoring model when one is configured. A scoring
// backend failure degrades to the local score and never reaches the caller.
func (g *Gateway) scoreRate(ctx context.Context, sessionID string, rate float64) float64 {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	var local float64
	if ok {
		local = sess.detector.Update(rate)
	}
	g.mu.Unlock()

	if !ok || g.scoring == nil {
		return local
	}

	score, err := g.scoring.Score(ctx, sessionID, rate)
	if err != nil {
		g.metricInc(MetricScoringFallback)
		g.emitAudit(ctx, auditEventScoringFallback, false, sessionID, err, nil)
		return local
	}
	return score
}

func (g *Gateway) suspendLocked(sessionID string) (time.Time, bool) {
	until := time.Now().Add(g.config.Anomaly.SuspendDuration)

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return time.Time{}, false
	}
	sess.suspendedUntil = until
	return until, true
}

// applyACLTransitions narrows the live ACL above the narrow threshold and
// restores the saved ACL below the restore threshold.
func (g *Gateway) applyACLTransitions(ctx context.Context, sessionID string, score float64, destIP string, action *ProcessAction) {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return
	}

	var changed bool
	switch {
	case score > g.config.Anomaly.NarrowThreshold:
		if narrowed, to := g.narrowLocked(sess, destIP); narrowed {
			action.ACLNarrowed = true
			action.NarrowedTo = to
			changed = true
		}
	case score < g.config.Anomaly.RestoreThreshold:
		if restored, to := g.restoreLocked(sess); restored {
			action.ACLRestored = true
			action.RestoredTo = to
			changed = true
		}
	}

	peerIdentity := sess.peerIdentity
	allowedIPs := cloneStrings(sess.allowedIPs)
	g.mu.Unlock()

	if !changed {
		return
	}

	if action.ACLNarrowed {
		g.metricInc(MetricACLNarrowed)
		g.emitAudit(ctx, auditEventACLNarrowed, true, sessionID, nil, func() map[string]string {
			return map[string]string{
				"narrowed_to": joinCIDRs(action.NarrowedTo),
			}
		})
	} else {
		g.metricInc(MetricACLRestored)
		g.emitAudit(ctx, auditEventACLRestored, true, sessionID, nil, func() map[string]string {
			return map[string]string{
				"restored_to": joinCIDRs(action.RestoredTo),
			}
		})
	}

	g.syncPeer(ctx, sessionID, peerIdentity, allowedIPs)
}
