package ztgate

import (
	"errors"
	"math"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Config defines a public type used by ztgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Crypto  CryptoConfig
	Anomaly AnomalyConfig
	ACL     ACLConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig defines a public type used by ztgate APIs.
//
// CryptoConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CryptoConfig struct {
	// KeySize is the session key length in bytes. Only the AEAD's native
	// key size is accepted.
	KeySize int
	// MasterSecret, when set, seals persisted session keys with a key
	// derived from it. Used by the Redis convenience path in the Builder.
	MasterSecret []byte
	// AllowInsecureKeyStore permits plaintext key persistence when no
	// sealing backend is configured. Intended for tests only.
	AllowInsecureKeyStore bool
}

/*
====================================
ANOMALY CONFIG
====================================
*/

// AnomalyConfig carries the operator-tunable scoring thresholds. The defaults
// are examples, not protocol constants; deployments tune them per fleet.
type AnomalyConfig struct {
	// Alpha is the EMA smoothing factor in (0,1).
	Alpha float64
	// AnomalyThreshold triggers auto-suspension when exceeded.
	AnomalyThreshold float64
	// NarrowThreshold triggers dynamic ACL narrowing when exceeded.
	NarrowThreshold float64
	// RestoreThreshold re-widens a narrowed ACL when the score drops below it.
	RestoreThreshold float64
	// SuspendDuration is how long an auto-suspension lasts.
	SuspendDuration time.Duration
}

/*
====================================
ACL CONFIG
====================================
*/

// ACLConfig defines a public type used by ztgate APIs.
//
// ACLConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ACLConfig struct {
	// FallbackNarrowCIDR is the local-only rule applied when narrowing is
	// required but no destination is known.
	FallbackNarrowCIDR string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by ztgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events under backpressure instead of blocking the
	// hot path; drops are counted.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by ztgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Crypto: CryptoConfig{
			KeySize: chacha20poly1305.KeySize,
		},
		Anomaly: AnomalyConfig{
			Alpha:            0.3,
			AnomalyThreshold: 4.0,
			NarrowThreshold:  6.0,
			RestoreThreshold: 1.0,
			SuspendDuration:  5 * time.Minute,
		},
		ACL: ACLConfig{
			FallbackNarrowCIDR: "127.0.0.1/32",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Crypto.MasterSecret = cloneBytes(cfg.Crypto.MasterSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Crypto.KeySize != chacha20poly1305.KeySize {
		return errors.New("crypto key size must match the AEAD key size")
	}
	if c.Anomaly.Alpha <= 0 || c.Anomaly.Alpha >= 1 || math.IsNaN(c.Anomaly.Alpha) {
		return errors.New("anomaly alpha must be in (0,1)")
	}
	if c.Anomaly.AnomalyThreshold <= 0 {
		return errors.New("anomaly threshold must be positive")
	}
	if c.Anomaly.NarrowThreshold <= 0 {
		return errors.New("narrow threshold must be positive")
	}
	if c.Anomaly.RestoreThreshold < 0 {
		return errors.New("restore threshold must be non-negative")
	}
	if c.Anomaly.RestoreThreshold >= c.Anomaly.NarrowThreshold {
		return errors.New("restore threshold must sit below narrow threshold")
	}
	if c.Anomaly.SuspendDuration <= 0 {
		return errors.New("suspend duration must be positive")
	}
	if c.ACL.FallbackNarrowCIDR == "" {
		return errors.New("fallback narrow CIDR required")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when audit is enabled")
	}
	return nil
}
