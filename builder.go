package ztgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/ztgate/keystore"
	"github.com/MrEthical07/ztgate/policy"
)

// Builder defines a public type used by ztgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	keyStore  keystore.Store
	redis     redis.UniversalClient
	policy    *policy.Adapter
	inspector PacketInspector
	peers     PeerController
	scoring   ScoringModel
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeyStore describes the withkeystore operation and its observable behavior.
//
// WithKeyStore may return an error when input validation, dependency calls, or security checks fail.
// WithKeyStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithKeyStore(store keystore.Store) *Builder {
	b.keyStore = store
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPolicyAdapter describes the withpolicyadapter operation and its observable behavior.
//
// WithPolicyAdapter may return an error when input validation, dependency calls, or security checks fail.
// WithPolicyAdapter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPolicyAdapter(adapter *policy.Adapter) *Builder {
	b.policy = adapter
	return b
}

// WithInspector describes the withinspector operation and its observable behavior.
//
// WithInspector may return an error when input validation, dependency calls, or security checks fail.
// WithInspector does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithInspector(inspector PacketInspector) *Builder {
	b.inspector = inspector
	return b
}

// WithPeerController describes the withpeercontroller operation and its observable behavior.
//
// WithPeerController may return an error when input validation, dependency calls, or security checks fail.
// WithPeerController does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPeerController(pc PeerController) *Builder {
	b.peers = pc
	return b
}

// WithScoringModel describes the withscoringmodel operation and its observable behavior.
//
// WithScoringModel may return an error when input validation, dependency calls, or security checks fail.
// WithScoringModel does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithScoringModel(sm ScoringModel) *Builder {
	b.scoring = sm
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.keyStore
	if store == nil && b.redis != nil {
		sealer := keystore.SelectSealer(nil, cfg.Crypto.MasterSecret, cfg.Crypto.AllowInsecureKeyStore)
		if sealer == nil {
			return nil, keystore.ErrNoSecureBackend
		}
		rs, err := keystore.NewRedisStore(b.redis, "", sealer)
		if err != nil {
			return nil, err
		}
		store = rs
	}
	if store == nil {
		return nil, errors.New("key store required")
	}

	gateway := &Gateway{
		config:   cfg,
		sessions: make(map[string]*session),
		keyStore: store,
	}

	gateway.policy = b.policy
	gateway.inspector = b.inspector
	gateway.peers = b.peers
	gateway.scoring = b.scoring
	gateway.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	gateway.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return gateway, nil
}
