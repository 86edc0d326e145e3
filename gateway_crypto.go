package ztgate

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// blobVersion tags the on-wire ciphertext layout:
// version byte, 12-byte nonce, AEAD ciphertext.
const blobVersion = 0x01

const blobHeaderSize = 1 + chacha20poly1305.NonceSize

// EncryptForSession describes the encryptforsession operation and its observable behavior.
//
// EncryptForSession may return an error when input validation, dependency calls, or security checks fail.
// EncryptForSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) EncryptForSession(ctx context.Context, sessionID string, plaintext, aad []byte) ([]byte, error) {
	aead, err := g.sessionAEAD(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, blobHeaderSize, blobHeaderSize+len(plaintext)+chacha20poly1305.Overhead)
	blob[0] = blobVersion
	if _, err := rand.Read(blob[1:blobHeaderSize]); err != nil {
		return nil, err
	}

	return aead.Seal(blob, blob[1:blobHeaderSize], plaintext, aad), nil
}

// DecryptForSession describes the decryptforsession operation and its observable behavior.
//
// DecryptForSession may return an error when input validation, dependency calls, or security checks fail.
// DecryptForSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) DecryptForSession(ctx context.Context, sessionID string, blob, aad []byte) ([]byte, error) {
	aead, err := g.sessionAEAD(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	plaintext, err := openBlob(aead, blob, aad)
	if err != nil {
		g.metricInc(MetricDecryptFailure)
		g.emitAudit(ctx, auditEventDecryptFailure, false, sessionID, ErrInvalidCiphertext, nil)
		return nil, ErrInvalidCiphertext
	}

	return plaintext, nil
}

// sessionAEAD resolves the live cipher for a session and enforces the
// suspension gate shared by both crypto directions.
func (g *Gateway) sessionAEAD(ctx context.Context, sessionID string) (cipher.AEAD, error) {
	if g == nil {
		return nil, ErrGatewayNotReady
	}

	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	var (
		aead      cipher.AEAD
		suspended bool
	)
	if ok {
		aead = sess.aead
		suspended = sess.suspended(time.Now())
	}
	g.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if suspended {
		g.metricInc(MetricSuspendedRejected)
		g.emitAudit(ctx, auditEventSuspendedRejected, false, sessionID, ErrSessionSuspended, nil)
		return nil, ErrSessionSuspended
	}

	return aead, nil
}

func openBlob(aead cipher.AEAD, blob, aad []byte) ([]byte, error) {
	if len(blob) < blobHeaderSize+aead.Overhead() || blob[0] != blobVersion {
		return nil, ErrInvalidCiphertext
	}
	return aead.Open(nil, blob[1:blobHeaderSize], blob[blobHeaderSize:], aad)
}
