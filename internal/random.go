package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const peerIdentityRawSize = 32

func NewSessionKey(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("invalid key size")
	}

	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func NewPeerIdentity() (string, error) {
	var raw [peerIdentityRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
