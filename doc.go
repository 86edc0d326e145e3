// Package ztgate provides a zero-trust secure-tunnel gateway with per-session
// AEAD encryption, statistical anomaly scoring, dynamic ACL narrowing, deep
// packet inspection, and micro-segmentation policy enforcement.
//
// The package is designed for concurrent server workloads: Gateway methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// ztgate is the public surface. It exposes [Gateway], [Builder], [Config], and
// value types (SessionInfo, ProcessResult, MetricsSnapshot, etc.). Sealed key
// persistence lives in keystore/, packet inspection in dpi/, policy decisions
// in policy/, and the streaming detector in anomaly/.
//
// # What this package must NOT do
//
//   - Expose raw session keys, key store payload encodings, or cipher state
//     in its public API.
//   - Perform I/O outside of Gateway methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports ztgate (no import cycles).
//
// # Performance contract
//
// ProcessIncoming is the hot path. The session registry lock covers state
// reads and mutations only; AEAD work, pattern matching, and remote policy
// calls run outside the critical section.
package ztgate
