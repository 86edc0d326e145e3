// Package policy implements the zero-trust decision surface of the ztgate
// gateway: device attestation scoring and micro-segmentation decisions, with
// an optional remote policy engine escape hatch.
//
// # Decision chains
//
// Both entry points walk a fixed priority chain and stop at the first step
// that produces a decision. Collaborators (hardware attestor, remote policy
// engine) are capability interfaces resolved once at construction; a missing
// collaborator or a failing call falls through to the next step, and the
// chains end in conservative defaults — micro-segmentation denies, attestation
// falls back to the local heuristic.
//
// # Remote policy engine
//
// [EngineClient] speaks the OPA-style data API: POST {base}/v1/data/{path}
// with {"input": ...}, expecting {"result": ...}. Calls carry a bounded
// timeout; network or parse failures surface as [ErrEngineUnavailable] and
// never abort a chain.
//
// # What this package must NOT do
//
//   - Mutate session state. Enforcement of a deny (suspension, ACL change)
//     belongs to the gateway.
//   - Treat a policy engine outage as an allow.
package policy
