package dpi

import (
	"bytes"
	"sort"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Match defines a public type used by ztgate APIs.
//
// Match instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Match struct {
	SID   int
	Start int
	End   int
	Bytes []byte
}

// Automaton is a read-only multi-pattern matcher built once from a signature
// set. Find reports every occurrence of every signature pattern, overlapping
// occurrences included, ordered by signature id then start offset.
type Automaton interface {
	Find(packet []byte) []Match
}

// patternSet deduplicates byte-identical patterns so that two signatures
// sharing a pattern both report every occurrence, regardless of matcher
// implementation.
type patternSet struct {
	patterns [][]byte
	sids     [][]int
}

func newPatternSet(sigs []Signature) patternSet {
	var ps patternSet
	index := make(map[string]int, len(sigs))
	for _, sig := range sigs {
		if len(sig.Pattern) == 0 {
			continue
		}
		key := string(sig.Pattern)
		i, ok := index[key]
		if !ok {
			i = len(ps.patterns)
			index[key] = i
			ps.patterns = append(ps.patterns, sig.Pattern)
			ps.sids = append(ps.sids, nil)
		}
		ps.sids[i] = append(ps.sids[i], sig.ID)
	}
	return ps
}

func (ps patternSet) expand(patternIdx, start int, matched []byte) []Match {
	out := make([]Match, 0, len(ps.sids[patternIdx]))
	for _, sid := range ps.sids[patternIdx] {
		out = append(out, Match{SID: sid, Start: start, End: start + len(matched), Bytes: matched})
	}
	return out
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SID != matches[j].SID {
			return matches[i].SID < matches[j].SID
		}
		return matches[i].Start < matches[j].Start
	})
}

// trieMatcher backs Find with an Aho-Corasick trie. Built once, never
// mutated, safe for lock-free concurrent reads.
type trieMatcher struct {
	set  patternSet
	trie *ahocorasick.Trie
}

// NewAutomaton builds the default trie-backed matcher from the signature set.
//
// NewAutomaton may return an error when input validation, dependency calls, or security checks fail.
// NewAutomaton does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewAutomaton(sigs []Signature) Automaton {
	set := newPatternSet(sigs)
	builder := ahocorasick.NewTrieBuilder()
	for _, pattern := range set.patterns {
		builder.AddPattern(pattern)
	}
	return &trieMatcher{set: set, trie: builder.Build()}
}

// Find describes the find operation and its observable behavior.
//
// Find may return an error when input validation, dependency calls, or security checks fail.
// Find does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *trieMatcher) Find(packet []byte) []Match {
	if len(m.set.patterns) == 0 || len(packet) == 0 {
		return nil
	}
	var out []Match
	for _, hit := range m.trie.Match(packet) {
		out = append(out, m.set.expand(int(hit.Pattern()), int(hit.Pos()), hit.Match())...)
	}
	sortMatches(out)
	return out
}

// naiveMatcher is the correct-but-slow fallback: a brute-force substring scan
// per signature. It is the oracle the trie implementation is tested against
// and must produce identical match sets for any input.
type naiveMatcher struct {
	set patternSet
}

// NewNaiveAutomaton describes the newnaiveautomaton operation and its observable behavior.
//
// NewNaiveAutomaton may return an error when input validation, dependency calls, or security checks fail.
// NewNaiveAutomaton does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewNaiveAutomaton(sigs []Signature) Automaton {
	return &naiveMatcher{set: newPatternSet(sigs)}
}

// Find describes the find operation and its observable behavior.
//
// Find may return an error when input validation, dependency calls, or security checks fail.
// Find does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *naiveMatcher) Find(packet []byte) []Match {
	var out []Match
	for i, pattern := range m.set.patterns {
		for off := 0; off+len(pattern) <= len(packet); {
			idx := bytes.Index(packet[off:], pattern)
			if idx < 0 {
				break
			}
			start := off + idx
			out = append(out, m.set.expand(i, start, packet[start:start+len(pattern)])...)
			off = start + 1
		}
	}
	sortMatches(out)
	return out
}
