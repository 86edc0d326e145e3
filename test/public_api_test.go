package test

import (
	"context"
	"testing"
	"time"

	ztgate "github.com/MrEthical07/ztgate"
	"github.com/MrEthical07/ztgate/dpi"
	"github.com/MrEthical07/ztgate/keystore"
	"github.com/MrEthical07/ztgate/policy"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = ztgate.New

	var _ *ztgate.Gateway
	var _ ztgate.Config
	var _ ztgate.SessionParams
	var _ ztgate.SessionInfo
	var _ *ztgate.ProcessResult
	var _ *ztgate.ProcessAction
	var _ ztgate.ScoringModel
	var _ ztgate.PeerController
	var _ ztgate.PacketInspector
	var _ ztgate.AuditSink
	var _ ztgate.MetricsSnapshot

	var _ error = ztgate.ErrGatewayNotReady
	var _ error = ztgate.ErrSessionExists
	var _ error = ztgate.ErrSessionNotFound
	var _ error = ztgate.ErrSessionSuspended
	var _ error = ztgate.ErrPermissionDenied
	var _ error = ztgate.ErrInvalidCiphertext
	var _ error = ztgate.ErrInvalidSessionID
	var _ error = ztgate.ErrInvalidKeySize

	var _ keystore.Store = (*keystore.FileStore)(nil)
	var _ keystore.Store = (*keystore.RedisStore)(nil)
	var _ ztgate.PacketInspector = (*dpi.Engine)(nil)

	var _ func(*ztgate.Gateway, context.Context, ztgate.SessionParams) error = (*ztgate.Gateway).CreateSession
	var _ func(*ztgate.Gateway, context.Context, string) bool = (*ztgate.Gateway).CloseSession
	var _ func(*ztgate.Gateway, context.Context, string) (bool, error) = (*ztgate.Gateway).RekeySession
	var _ func(*ztgate.Gateway, context.Context, string, time.Time) bool = (*ztgate.Gateway).SuspendSession
	var _ func(*ztgate.Gateway, string) bool = (*ztgate.Gateway).ResumeSession
	var _ func(*ztgate.Gateway, context.Context, string, []byte, []byte) ([]byte, error) = (*ztgate.Gateway).EncryptForSession
	var _ func(*ztgate.Gateway, context.Context, string, []byte, []byte) ([]byte, error) = (*ztgate.Gateway).DecryptForSession
	var _ func(*ztgate.Gateway, context.Context, string, []byte, []byte, string) (*ztgate.ProcessResult, error) = (*ztgate.Gateway).ProcessIncoming

	var _ func(policy.Config, *policy.EngineClient, policy.HardwareAttestor) (*policy.Adapter, error) = policy.NewAdapter
	var _ func(*policy.Adapter, context.Context, map[string]any) policy.AttestationResult = (*policy.Adapter).AttestDevice
	var _ func(*policy.Adapter, context.Context, map[string]any, string, string) policy.Decision = (*policy.Adapter).EnforceMicrosegmentation
}
