package dpi

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// Signature defines a public type used by ztgate APIs.
//
// Signature instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Signature struct {
	ID      int
	Pattern []byte
}

// ParseSignatures reads newline-delimited "id:pattern" rules. Patterns are
// either 0x-prefixed hex or literal ASCII; lines starting with # and blank
// lines are ignored. Malformed lines are skipped with a warning and never
// abort the load.
func ParseSignatures(r io.Reader) ([]Signature, error) {
	var sigs []Signature
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sig, err := parseSignatureLine(line)
		if err != nil {
			log.Printf("ztgate: skipping signature line %d: %v", lineNo, err)
			continue
		}
		sigs = append(sigs, sig)
	}
	if err := scanner.Err(); err != nil {
		return sigs, fmt.Errorf("read signature source: %w", err)
	}
	return sigs, nil
}

// LoadSignatureFile describes the loadsignaturefile operation and its observable behavior.
//
// LoadSignatureFile may return an error when input validation, dependency calls, or security checks fail.
// LoadSignatureFile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func LoadSignatureFile(path string) ([]Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signature file: %w", err)
	}
	defer f.Close()
	return ParseSignatures(f)
}

func parseSignatureLine(line string) (Signature, error) {
	idText, patternText, ok := strings.Cut(line, ":")
	if !ok {
		return Signature{}, fmt.Errorf("missing id separator in %q", line)
	}

	id, err := strconv.Atoi(strings.TrimSpace(idText))
	if err != nil {
		return Signature{}, fmt.Errorf("bad signature id %q: %v", idText, err)
	}

	var pattern []byte
	if rest, isHex := strings.CutPrefix(patternText, "0x"); isHex {
		pattern, err = hex.DecodeString(rest)
		if err != nil {
			return Signature{}, fmt.Errorf("bad hex pattern for id %d: %v", id, err)
		}
	} else {
		pattern = []byte(patternText)
	}

	if len(pattern) == 0 {
		return Signature{}, fmt.Errorf("empty pattern for id %d", id)
	}
	return Signature{ID: id, Pattern: pattern}, nil
}
