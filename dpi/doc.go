// Package dpi implements the inline deep-packet-inspection engine of the
// ztgate gateway: signature loading, multi-pattern matching over decrypted
// payload bytes, best-effort packet header parsing, and a local framed-socket
// verdict service.
//
// # Matching contract
//
// The signature set is immutable for the lifetime of one [Automaton]. Reloads
// build a new automaton and swap it atomically; readers never lock. Two
// matcher implementations exist — an Aho-Corasick trie (the default) and a
// naive per-signature scan — and both must produce identical match sets for
// any input. The naive path is the correctness oracle and the documented
// fallback.
//
// # Verdict wire protocol
//
// One request per connection: a 4-byte big-endian length L followed by L raw
// packet bytes. The response is a single JSON document encoding the verdict,
// with matched byte strings Latin-1 decoded for JSON safety, after which the
// connection is closed. Field names are the wire contract; renaming any of
// them breaks callers.
//
// # What this package must NOT do
//
//   - Persist anything. A verdict is a pure function of automaton and packet.
//   - Let a header parse failure affect the drop/accept decision.
//   - Mutate a built automaton.
package dpi
