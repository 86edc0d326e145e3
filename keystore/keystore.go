package keystore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSecureBackend is an exported constant or variable used by the tunnel gateway.
	ErrNoSecureBackend = errors.New("no secure key storage backend configured")
	// ErrKeyNotFound is an exported constant or variable used by the tunnel gateway.
	ErrKeyNotFound = errors.New("session key not found")
	// ErrUnknownFormat is an exported constant or variable used by the tunnel gateway.
	ErrUnknownFormat = errors.New("unknown key payload format")
	// ErrUnsealFailed is an exported constant or variable used by the tunnel gateway.
	ErrUnsealFailed = errors.New("key unseal failed")
)

// payloadMagic prefixes every stored payload so LoadKey can reject foreign or
// corrupted files before attempting an unseal.
const payloadMagic = "ztk1"

// Store defines a public type used by ztgate APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store interface {
	SaveKey(ctx context.Context, sessionID string, key []byte) error
	LoadKey(ctx context.Context, sessionID string) ([]byte, error)
	DeleteKey(ctx context.Context, sessionID string) error
}

// codec turns raw key material into tagged, sealed payload text and back.
// Both backends share it so file and Redis payloads stay interchangeable.
type codec struct {
	primary Sealer
	byTag   map[string]Sealer
}

func newCodec(primary Sealer, extra ...Sealer) codec {
	c := codec{primary: primary, byTag: make(map[string]Sealer, 1+len(extra))}
	if primary != nil {
		c.byTag[primary.Tag()] = primary
	}
	for _, s := range extra {
		if s != nil {
			c.byTag[s.Tag()] = s
		}
	}
	return c
}

func (c codec) encode(key []byte) (string, error) {
	if c.primary == nil {
		return "", ErrNoSecureBackend
	}
	sealed, err := c.primary.Seal(key)
	if err != nil {
		return "", fmt.Errorf("seal key: %w", err)
	}
	return payloadMagic + ":" + c.primary.Tag() + ":" + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c codec) decode(payload string) ([]byte, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] != payloadMagic {
		return nil, ErrUnknownFormat
	}
	sealer, ok := c.byTag[parts[1]]
	if !ok {
		return nil, fmt.Errorf("%w: no sealer for scheme %q", ErrUnknownFormat, parts[1])
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	key, err := sealer.Unseal(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	return key, nil
}
