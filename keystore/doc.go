// Package keystore persists per-session symmetric key material for the ztgate
// gateway, sealed at rest.
//
// # Sealing chain
//
// Keys are never written in the clear unless the caller explicitly opts into
// [InsecureSealer]. The supported schemes, in priority order, are:
//   - hw:  an injected [HardwareSealer] collaborator (TPM/TEE style opaque
//     seal/unseal of blobs),
//   - mk:  AEAD under a master key derived from an externally supplied secret
//     (argon2id + ChaCha20-Poly1305),
//   - ins: plaintext, explicit opt-in for local development only.
//
// A store constructed without any sealer fails [Store.SaveKey] with
// [ErrNoSecureBackend] rather than silently storing plaintext. Every stored
// payload self-identifies its scheme with a tag prefix so LoadKey can dispatch
// and reject unknown formats loudly.
//
// # Backends
//
// [FileStore] keeps one file per session under a configured directory with
// write-temp-then-rename atomicity. [RedisStore] keeps the same sealed
// payloads in Redis for gateways that share key state across restarts.
//
// # What this package must NOT do
//
//   - Log key material.
//   - Downgrade an unseal or decode failure to "key absent".
//   - Be bypassed by the gateway for key persistence.
package keystore
