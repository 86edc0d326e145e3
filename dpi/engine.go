package dpi

import (
	"sync/atomic"
)

// VerdictAccept is an exported constant or variable used by the tunnel gateway.
const VerdictAccept = "accept"

// VerdictDrop is an exported constant or variable used by the tunnel gateway.
const VerdictDrop = "drop"

// MatchDetail is one signature hit inside a packet. MatchedBytes carries the
// matched byte string Latin-1 decoded so the JSON rendering is byte-exact.
type MatchDetail struct {
	SID          int    `json:"sid"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	MatchedBytes string `json:"matched_bytes"`
}

// Verdict defines a public type used by ztgate APIs.
//
// Verdict instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Verdict struct {
	Verdict      string        `json:"verdict"`
	Matches      []int         `json:"matches"`
	MatchDetails []MatchDetail `json:"match_details"`
	Meta         *PacketMeta   `json:"meta,omitempty"`
	MetaError    string        `json:"meta_error,omitempty"`
}

// Engine defines a public type used by ztgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	automaton atomic.Pointer[Automaton]
}

// NewEngine describes the newengine operation and its observable behavior.
//
// NewEngine may return an error when input validation, dependency calls, or security checks fail.
// NewEngine does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewEngine(sigs []Signature) *Engine {
	e := &Engine{}
	e.Reload(sigs)
	return e
}

// Reload builds a fresh automaton from sigs and swaps it in atomically.
// In-flight verdicts keep the automaton they started with.
func (e *Engine) Reload(sigs []Signature) {
	automaton := NewAutomaton(sigs)
	e.automaton.Store(&automaton)
}

// VerdictForPacket inspects one packet: drop iff at least one signature
// matches. Header parsing is best-effort and recorded, never decisive.
func (e *Engine) VerdictForPacket(packet []byte) Verdict {
	v := Verdict{
		Verdict:      VerdictAccept,
		Matches:      []int{},
		MatchDetails: []MatchDetail{},
	}

	matches := (*e.automaton.Load()).Find(packet)
	if len(matches) > 0 {
		v.Verdict = VerdictDrop
		seen := make(map[int]bool, len(matches))
		for _, m := range matches {
			if !seen[m.SID] {
				seen[m.SID] = true
				v.Matches = append(v.Matches, m.SID)
			}
			v.MatchDetails = append(v.MatchDetails, MatchDetail{
				SID:          m.SID,
				Start:        m.Start,
				End:          m.End,
				MatchedBytes: latin1String(m.Bytes),
			})
		}
	}

	meta, err := ParsePacketMeta(packet)
	v.Meta = &meta
	if err != nil {
		v.MetaError = err.Error()
	}
	return v
}

// latin1String maps each byte to the code point of the same value, so the
// result survives JSON encoding for arbitrary binary input and the original
// bytes are recoverable by the caller.
func latin1String(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
