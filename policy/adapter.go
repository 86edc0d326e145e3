package policy

import (
	"context"
	"errors"
	"log"
	"net/netip"
	"strings"
)

// AttestationResult defines a public type used by ztgate APIs.
//
// AttestationResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AttestationResult struct {
	Attested bool           `json:"attested"`
	Score    float64        `json:"score"`
	Reasons  []string       `json:"reasons"`
	Claims   map[string]any `json:"claims,omitempty"`
	DeviceID string         `json:"device_id,omitempty"`
}

// Decision defines a public type used by ztgate APIs.
//
// Decision instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// HardwareAttestation is what a hardware attestation collaborator reports.
type HardwareAttestation struct {
	Attested bool
	DeviceID string
}

// HardwareAttestor is the capability interface for a hardware attestation
// collaborator (TPM quote verifier, TEE report checker). Absence is
// non-fatal; the chain falls through.
type HardwareAttestor interface {
	Attest(ctx context.Context, deviceInfo map[string]any) (HardwareAttestation, error)
}

const attestedScoreThreshold = 0.6

// Config defines a public type used by ztgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// AllowedCIDRs, when non-empty, gates destinations by network containment.
	AllowedCIDRs []string
	// TrustedVendors feed the local attestation heuristic.
	TrustedVendors []string
	// AttestationToken enables JWT evidence verification when a verify key is set.
	AttestationToken TokenConfig
}

// Adapter defines a public type used by ztgate APIs.
//
// Adapter instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Adapter struct {
	engine         *EngineClient
	hw             HardwareAttestor
	tokens         *TokenVerifier
	cidrs          []netip.Prefix
	trustedVendors map[string]bool
}

// NewAdapter resolves all collaborators once. engine and hw may be nil; the
// decision chains treat them as absent.
func NewAdapter(cfg Config, engine *EngineClient, hw HardwareAttestor) (*Adapter, error) {
	a := &Adapter{
		engine:         engine,
		hw:             hw,
		trustedVendors: make(map[string]bool, len(cfg.TrustedVendors)),
	}

	for _, raw := range cfg.AllowedCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.New("bad allowed CIDR " + raw)
		}
		a.cidrs = append(a.cidrs, prefix)
	}
	for _, vendor := range cfg.TrustedVendors {
		a.trustedVendors[strings.ToLower(strings.TrimSpace(vendor))] = true
	}
	if len(cfg.AttestationToken.VerifyKey) > 0 {
		verifier, err := NewTokenVerifier(cfg.AttestationToken)
		if err != nil {
			return nil, err
		}
		a.tokens = verifier
	}
	return a, nil
}

// AttestDevice walks the attestation chain: hardware collaborator, remote
// policy engine, local heuristic. The first step that produces a decision
// wins; the heuristic always does.
func (a *Adapter) AttestDevice(ctx context.Context, deviceInfo map[string]any) AttestationResult {
	if deviceInfo == nil {
		deviceInfo = map[string]any{}
	}

	info, tokenReasons := a.resolveEvidence(deviceInfo)

	if a.hw != nil {
		att, err := a.hw.Attest(ctx, info)
		if err != nil {
			log.Printf("ztgate: hardware attestor unavailable: %v", err)
		} else if att.Attested {
			return AttestationResult{
				Attested: true,
				Score:    1.0,
				Reasons:  append(tokenReasons, "hardware_attested"),
				Claims:   info,
				DeviceID: att.DeviceID,
			}
		}
	}

	if a.engine != nil {
		decision, err := a.engine.Evaluate(ctx, info)
		if err != nil {
			log.Printf("ztgate: %v", err)
		} else if result, ok := attestationFromDecision(decision, info); ok {
			result.Reasons = append(tokenReasons, result.Reasons...)
			return result
		}
	}

	result := a.heuristicAttestation(info)
	result.Reasons = append(tokenReasons, result.Reasons...)
	return result
}

// resolveEvidence verifies an optional attestation token and merges its
// claims under the caller-supplied fields (explicit fields win).
func (a *Adapter) resolveEvidence(deviceInfo map[string]any) (map[string]any, []string) {
	token, _ := deviceInfo["attestation_token"].(string)
	if a.tokens == nil || token == "" {
		return deviceInfo, nil
	}

	claims, err := a.tokens.Verify(token)
	if err != nil {
		log.Printf("ztgate: %v", err)
		return deviceInfo, []string{"attestation_token_invalid"}
	}

	merged := make(map[string]any, len(deviceInfo)+len(claims))
	for k, v := range claims {
		merged[k] = v
	}
	for k, v := range deviceInfo {
		merged[k] = v
	}
	return merged, []string{"attestation_token_verified"}
}

func attestationFromDecision(decision, claims map[string]any) (AttestationResult, bool) {
	allowed, ok := asBool(decision["allowed"])
	if !ok {
		return AttestationResult{}, false
	}
	score, ok := asFloat(decision["score"])
	if !ok {
		if allowed {
			score = 1.0
		}
	}
	result := AttestationResult{
		Attested: allowed,
		Score:    score,
		Reasons:  asStringSlice(decision["reasons"]),
		Claims:   claims,
	}
	if id, ok := decision["device_id"].(string); ok {
		result.DeviceID = id
	}
	if len(result.Reasons) == 0 {
		result.Reasons = []string{"policy_engine_decision"}
	}
	return result, true
}

func (a *Adapter) heuristicAttestation(info map[string]any) AttestationResult {
	// Scored in tenths so partial sums stay exact.
	tenths := 0
	var reasons []string

	if secureBoot, _ := asBool(info["secure_boot"]); secureBoot {
		tenths += 4
		reasons = append(reasons, "secure_boot")
	}
	if patchAge, ok := asFloat(info["patch_age_days"]); ok {
		switch {
		case patchAge <= 30:
			tenths += 4
			reasons = append(reasons, "patched_recently")
		case patchAge <= 90:
			tenths += 2
			reasons = append(reasons, "patched_within_quarter")
		default:
			reasons = append(reasons, "patch_stale")
		}
	}
	if vendor, ok := info["vendor"].(string); ok && a.trustedVendors[strings.ToLower(vendor)] {
		tenths += 2
		reasons = append(reasons, "trusted_vendor")
	}
	if tenths > 10 {
		tenths = 10
	}
	score := float64(tenths) / 10

	result := AttestationResult{
		Attested: score >= attestedScoreThreshold,
		Score:    score,
		Reasons:  reasons,
		Claims:   info,
	}
	if id, ok := info["device_id"].(string); ok {
		result.DeviceID = id
	}
	return result
}

// EnforceMicrosegmentation walks the segmentation chain for one destination.
// The chain ends in default-deny; only explicit evidence opens a path.
func (a *Adapter) EnforceMicrosegmentation(ctx context.Context, sessionMeta map[string]any, destAddr, proto string) Decision {
	if sessionMeta == nil {
		sessionMeta = map[string]any{}
	}

	if role, _ := sessionMeta["role"].(string); role == "admin" {
		return Decision{Allowed: true, Reason: "admin_bypass"}
	}

	if a.engine != nil {
		input := map[string]any{
			"session":     sessionMeta,
			"destination": destAddr,
		}
		if proto != "" {
			input["protocol"] = proto
		}
		decision, err := a.engine.Evaluate(ctx, input)
		if err != nil {
			log.Printf("ztgate: %v", err)
		} else if allowed, ok := asBool(decision["allowed"]); ok {
			reason, _ := decision["reason"].(string)
			if reason == "" {
				reason = "policy_engine_decision"
			}
			return Decision{Allowed: allowed, Reason: reason, Details: decision}
		}
	}

	if len(a.cidrs) > 0 && destAddr != "" {
		dest, err := netip.ParseAddr(destAddr)
		if err != nil {
			return Decision{Allowed: false, Reason: "invalid_destination"}
		}
		for _, prefix := range a.cidrs {
			if prefix.Contains(dest) {
				return Decision{Allowed: true, Reason: "cidr_allowed"}
			}
		}
		return Decision{Allowed: false, Reason: "cidr_denied"}
	}

	if segments := asStringSlice(sessionMeta["allowed_segments"]); len(segments) > 0 {
		destSegment, _ := sessionMeta["dest_segment"].(string)
		if destSegment != "" {
			for _, seg := range segments {
				if seg == destSegment {
					return Decision{Allowed: true, Reason: "segment_allowed"}
				}
			}
			return Decision{Allowed: false, Reason: "segment_denied"}
		}
	}

	if destAddr == "" {
		return Decision{Allowed: true, Reason: "no_dest_specified"}
	}

	return Decision{Allowed: false, Reason: "default_deny"}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
