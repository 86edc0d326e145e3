package keystore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// TagHardware is an exported constant or variable used by the tunnel gateway.
	TagHardware = "hw"
	// TagMasterKey is an exported constant or variable used by the tunnel gateway.
	TagMasterKey = "mk"
	// TagInsecure is an exported constant or variable used by the tunnel gateway.
	TagInsecure = "ins"
)

const (
	masterSaltSize = 16
	masterKeySize  = chacha20poly1305.KeySize

	// argon2id cost parameters for master key derivation. Key files are a
	// cold path so the derivation cost is paid per save/load, not per packet.
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
)

// Sealer defines a public type used by ztgate APIs.
//
// Sealer instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Sealer interface {
	Tag() string
	Seal(key []byte) ([]byte, error)
	Unseal(sealed []byte) ([]byte, error)
}

// HardwareSealer is the capability interface for a TPM/TEE style sealing
// collaborator. Resolved once at construction; absence is non-fatal as long
// as another sealer is configured.
type HardwareSealer interface {
	Seal(blob []byte) ([]byte, error)
	Unseal(blob []byte) ([]byte, error)
}

// SelectSealer picks the strongest available sealing scheme: hardware if a
// collaborator is present, master-key derivation if a secret is supplied,
// the insecure scheme only on explicit opt-in. Returns nil when nothing is
// configured; stores built with a nil sealer refuse SaveKey.
func SelectSealer(hw HardwareSealer, masterSecret []byte, allowInsecure bool) Sealer {
	switch {
	case hw != nil:
		return NewHardwareAdapter(hw)
	case len(masterSecret) > 0:
		return NewMasterSealer(masterSecret)
	case allowInsecure:
		return InsecureSealer{}
	default:
		return nil
	}
}

// hardwareAdapter binds a HardwareSealer collaborator into the Sealer chain.
type hardwareAdapter struct {
	hw HardwareSealer
}

// NewHardwareAdapter describes the newhardwareadapter operation and its observable behavior.
//
// NewHardwareAdapter may return an error when input validation, dependency calls, or security checks fail.
// NewHardwareAdapter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHardwareAdapter(hw HardwareSealer) Sealer {
	if hw == nil {
		return nil
	}
	return hardwareAdapter{hw: hw}
}

func (hardwareAdapter) Tag() string { return TagHardware }

func (a hardwareAdapter) Seal(key []byte) ([]byte, error) {
	return a.hw.Seal(key)
}

func (a hardwareAdapter) Unseal(sealed []byte) ([]byte, error) {
	return a.hw.Unseal(sealed)
}

// MasterSealer defines a public type used by ztgate APIs.
//
// MasterSealer instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MasterSealer struct {
	secret []byte
}

// NewMasterSealer describes the newmastersealer operation and its observable behavior.
//
// NewMasterSealer may return an error when input validation, dependency calls, or security checks fail.
// NewMasterSealer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMasterSealer(secret []byte) *MasterSealer {
	if len(secret) == 0 {
		return nil
	}
	s := &MasterSealer{secret: make([]byte, len(secret))}
	copy(s.secret, secret)
	return s
}

// Tag describes the tag operation and its observable behavior.
//
// Tag may return an error when input validation, dependency calls, or security checks fail.
// Tag does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (*MasterSealer) Tag() string { return TagMasterKey }

// Seal encrypts key under an argon2id-derived master key. The sealed blob is
// self-contained: per-seal salt, then nonce, then AEAD ciphertext.
func (s *MasterSealer) Seal(key []byte) ([]byte, error) {
	salt := make([]byte, masterSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	aead, err := s.derive(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, masterSaltSize+aead.NonceSize()+len(key)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, key, salt), nil
}

// Unseal describes the unseal operation and its observable behavior.
//
// Unseal may return an error when input validation, dependency calls, or security checks fail.
// Unseal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MasterSealer) Unseal(sealed []byte) ([]byte, error) {
	minLen := masterSaltSize + chacha20poly1305.NonceSize + chacha20poly1305.Overhead
	if len(sealed) < minLen {
		return nil, errors.New("sealed blob truncated")
	}

	salt := sealed[:masterSaltSize]
	nonce := sealed[masterSaltSize : masterSaltSize+chacha20poly1305.NonceSize]
	ciphertext := sealed[masterSaltSize+chacha20poly1305.NonceSize:]

	aead, err := s.derive(salt)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, salt)
}

func (s *MasterSealer) derive(salt []byte) (cipher.AEAD, error) {
	masterKey := argon2.IDKey(s.secret, salt, argonTime, argonMemory, argonThreads, masterKeySize)
	aead, err := chacha20poly1305.New(masterKey)
	if err != nil {
		return nil, fmt.Errorf("master key AEAD init: %w", err)
	}
	return aead, nil
}

// InsecureSealer stores keys unsealed. Explicit opt-in for local development
// and tests only; never selected by default.
type InsecureSealer struct{}

// Tag describes the tag operation and its observable behavior.
//
// Tag may return an error when input validation, dependency calls, or security checks fail.
// Tag does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (InsecureSealer) Tag() string { return TagInsecure }

// Seal describes the seal operation and its observable behavior.
//
// Seal may return an error when input validation, dependency calls, or security checks fail.
// Seal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (InsecureSealer) Seal(key []byte) ([]byte, error) {
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

// Unseal describes the unseal operation and its observable behavior.
//
// Unseal may return an error when input validation, dependency calls, or security checks fail.
// Unseal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (InsecureSealer) Unseal(sealed []byte) ([]byte, error) {
	out := make([]byte, len(sealed))
	copy(out, sealed)
	return out, nil
}
