package keystore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore defines a public type used by ztgate APIs.
//
// FileStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FileStore struct {
	dir   string
	codec codec
}

// NewFileStore creates a key store that writes one sealed key file per session
// under dir. The primary sealer protects new saves; extra sealers are accepted
// for reading payloads written under other schemes (for example after a
// hardware-to-master migration).
func NewFileStore(dir string, primary Sealer, extra ...Sealer) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("key directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	return &FileStore{dir: dir, codec: newCodec(primary, extra...)}, nil
}

// SaveKey describes the savekey operation and its observable behavior.
//
// SaveKey may return an error when input validation, dependency calls, or security checks fail.
// SaveKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *FileStore) SaveKey(_ context.Context, sessionID string, key []byte) error {
	payload, err := s.codec.encode(key)
	if err != nil {
		return err
	}

	path := s.path(sessionID)

	// Partial writes must never clobber a previously valid key file.
	tmp, err := os.CreateTemp(s.dir, ".ztk-*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(payload + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close key file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod key file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit key file: %w", err)
	}
	return nil
}

// LoadKey describes the loadkey operation and its observable behavior.
//
// LoadKey may return an error when input validation, dependency calls, or security checks fail.
// LoadKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *FileStore) LoadKey(_ context.Context, sessionID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return s.codec.decode(strings.TrimSpace(string(data)))
}

// DeleteKey describes the deletekey operation and its observable behavior.
//
// DeleteKey may return an error when input validation, dependency calls, or security checks fail.
// DeleteKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *FileStore) DeleteKey(_ context.Context, sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete key file: %w", err)
	}
	return nil
}

// path hashes the session id so arbitrary id strings map to safe filenames.
func (s *FileStore) path(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".key")
}
