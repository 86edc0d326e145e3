package ztgate

import (
	"context"
	"log"
	"net/netip"
	"strings"
)

// narrowLocked shrinks the live ACL to a single-host rule. The pre-narrow
// ACL is captured exactly once so repeated narrowing cannot clobber it.
// Caller holds g.mu.
func (g *Gateway) narrowLocked(sess *session, destIP string) (bool, []string) {
	if !sess.narrowed {
		sess.savedIPs = cloneStrings(sess.allowedIPs)
		sess.narrowed = true
	}

	sess.allowedIPs = []string{g.narrowCIDRFor(destIP)}
	return true, cloneStrings(sess.allowedIPs)
}

// restoreLocked re-widens a narrowed ACL to the originally-saved rules and
// clears the saved value. Caller holds g.mu.
func (g *Gateway) restoreLocked(sess *session) (bool, []string) {
	if !sess.narrowed {
		return false, nil
	}

	sess.allowedIPs = sess.savedIPs
	sess.savedIPs = nil
	sess.narrowed = false
	return true, cloneStrings(sess.allowedIPs)
}

// narrowCIDRFor derives the single-host rule for a destination, falling back
// to the configured local-only rule when no usable destination is known.
func (g *Gateway) narrowCIDRFor(destIP string) string {
	addr, err := netip.ParseAddr(destIP)
	if err != nil {
		return g.config.ACL.FallbackNarrowCIDR
	}
	if addr.Is4() {
		return netip.PrefixFrom(addr, 32).String()
	}
	return netip.PrefixFrom(addr, 128).String()
}

// syncPeer pushes the current ACL to the external peer controller.
// Best-effort: failures are logged and counted, never propagated.
func (g *Gateway) syncPeer(ctx context.Context, sessionID, peerIdentity string, allowedIPs []string) {
	if g.peers == nil {
		return
	}

	if err := g.peers.AddPeer(ctx, sessionID, peerIdentity, allowedIPs); err != nil {
		log.Print("ztgate: peer controller ACL sync failed")
		g.metricInc(MetricPeerControlFailure)
		g.emitAudit(ctx, auditEventPeerControlError, false, sessionID, err, nil)
	}
}

func joinCIDRs(cidrs []string) string {
	return strings.Join(cidrs, ",")
}
