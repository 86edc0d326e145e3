package ztgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/ztgate/keystore"
	"github.com/MrEthical07/ztgate/policy"
)

const (
	auditEventSessionCreated    = "session_created"
	auditEventSessionClosed     = "session_closed"
	auditEventSessionRekeyed    = "session_rekeyed"
	auditEventSessionSuspended  = "session_suspended"
	auditEventSuspendedRejected = "suspended_packet_rejected"
	auditEventDecryptFailure    = "decrypt_failure"
	auditEventAnomalySuspend    = "anomaly_auto_suspend"
	auditEventPolicyDenied      = "policy_denied"
	auditEventACLNarrowed       = "acl_narrowed"
	auditEventACLRestored       = "acl_restored"
	auditEventDPIDrop           = "dpi_drop"
	auditEventScoringFallback   = "scoring_fallback"
	auditEventPeerControlError  = "peer_control_error"
)

// AuditErrorCode defines a public type used by ztgate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrGatewayNotReady   AuditErrorCode = "gateway_not_ready"
	auditErrSessionExists     AuditErrorCode = "session_exists"
	auditErrSessionNotFound   AuditErrorCode = "session_not_found"
	auditErrSessionSuspended  AuditErrorCode = "session_suspended"
	auditErrPermissionDenied  AuditErrorCode = "permission_denied"
	auditErrInvalidCiphertext AuditErrorCode = "invalid_ciphertext"
	auditErrInvalidSessionID  AuditErrorCode = "invalid_session_id"
	auditErrInvalidKeySize    AuditErrorCode = "invalid_key_size"
	auditErrKeyStore          AuditErrorCode = "key_store_failure"
	auditErrPolicyEngine      AuditErrorCode = "policy_engine_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (g *Gateway) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := newAuditEvent(eventType, sessionID)
	event.SourceIP = sourceAddrFromContext(ctx)
	event.Success = success
	event.Metadata = metadata
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	g.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrGatewayNotReady):
		return auditErrGatewayNotReady
	case errors.Is(err, ErrSessionExists):
		return auditErrSessionExists
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionSuspended):
		return auditErrSessionSuspended
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrInvalidCiphertext):
		return auditErrInvalidCiphertext
	case errors.Is(err, ErrInvalidSessionID):
		return auditErrInvalidSessionID
	case errors.Is(err, ErrInvalidKeySize):
		return auditErrInvalidKeySize
	case errors.Is(err, keystore.ErrNoSecureBackend),
		errors.Is(err, keystore.ErrKeyNotFound),
		errors.Is(err, keystore.ErrUnknownFormat),
		errors.Is(err, keystore.ErrUnsealFailed):
		return auditErrKeyStore
	case errors.Is(err, policy.ErrEngineUnavailable):
		return auditErrPolicyEngine
	default:
		return auditErrInternal
	}
}
