package ztgate

import "errors"

var (
	// ErrGatewayNotReady is an exported constant or variable used by the tunnel gateway.
	ErrGatewayNotReady = errors.New("gateway not ready")
	// ErrSessionExists is an exported constant or variable used by the tunnel gateway.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is an exported constant or variable used by the tunnel gateway.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionSuspended is an exported constant or variable used by the tunnel gateway.
	ErrSessionSuspended = errors.New("session suspended")
	// ErrPermissionDenied is an exported constant or variable used by the tunnel gateway.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCiphertext is an exported constant or variable used by the tunnel gateway.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidSessionID is an exported constant or variable used by the tunnel gateway.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidKeySize is an exported constant or variable used by the tunnel gateway.
	ErrInvalidKeySize = errors.New("invalid session key size")
)
