package auth

import "errors"

// API key failures map onto two gRPC codes. UNAUTHENTICATED for missing,
// malformed or unknown keys (doesn't confirm key existence).
// PERMISSION_DENIED for revoked keys (confirms key exists but blocked).
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")

	// ErrDatabase wraps key lookup failures; reported as UNAVAILABLE.
	ErrDatabase = errors.New("database error")
)

// Webhook signature failures.
var (
	ErrUnknownVendor    = errors.New("unknown webhook vendor")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("webhook signature mismatch")
)
