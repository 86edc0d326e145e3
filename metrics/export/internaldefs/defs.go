package internaldefs

import (
	ztgate "github.com/MrEthical07/ztgate"
)

// CounterDef defines a public type used by ztgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   ztgate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by ztgate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   ztgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the tunnel gateway.
var CounterDefs = []CounterDef{
	{ID: ztgate.MetricSessionCreated, Name: "ztgate_session_created_total", Help: "Created tunnel sessions."},
	{ID: ztgate.MetricSessionClosed, Name: "ztgate_session_closed_total", Help: "Closed tunnel sessions."},
	{ID: ztgate.MetricSessionRekeyed, Name: "ztgate_session_rekeyed_total", Help: "Session rekey operations."},
	{ID: ztgate.MetricSessionSuspended, Name: "ztgate_session_suspended_total", Help: "Session suspension events."},
	{ID: ztgate.MetricSuspendedRejected, Name: "ztgate_suspended_rejected_total", Help: "Crypto operations rejected while suspended."},
	{ID: ztgate.MetricDecryptFailure, Name: "ztgate_decrypt_failure_total", Help: "Failed packet decryptions."},
	{ID: ztgate.MetricAnomalySuspend, Name: "ztgate_anomaly_suspend_total", Help: "Auto-suspensions triggered by anomaly scores."},
	{ID: ztgate.MetricPolicyDenied, Name: "ztgate_policy_denied_total", Help: "Packets denied by micro-segmentation policy."},
	{ID: ztgate.MetricACLNarrowed, Name: "ztgate_acl_narrowed_total", Help: "Dynamic ACL narrowing operations."},
	{ID: ztgate.MetricACLRestored, Name: "ztgate_acl_restored_total", Help: "Dynamic ACL restore operations."},
	{ID: ztgate.MetricDPIDrop, Name: "ztgate_dpi_drop_total", Help: "Packets dropped by DPI signature matches."},
	{ID: ztgate.MetricScoringFallback, Name: "ztgate_scoring_fallback_total", Help: "Scoring backend failures degraded to the local detector."},
	{ID: ztgate.MetricPeerControlFailure, Name: "ztgate_peer_control_failure_total", Help: "Failed best-effort peer controller calls."},
}

// HistogramDefs is an exported constant or variable used by the tunnel gateway.
var HistogramDefs = []HistogramDef{
	{ID: ztgate.MetricProcessLatency, Name: "ztgate_process_latency_seconds", Help: "ProcessIncoming latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the tunnel gateway.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the tunnel gateway.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
