package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body,
// optionally prefixed "sha256=".
const SignatureHeader = "X-Campaignkeeper-Signature"

// SignatureVerifier checks vendor webhook bodies against per-vendor secrets.
type SignatureVerifier struct {
	secrets map[string][]byte
}

// NewSignatureVerifier creates a verifier over vendor -> secret.
func NewSignatureVerifier(secrets map[string][]byte) *SignatureVerifier {
	return &SignatureVerifier{secrets: secrets}
}

// Sign returns the header value for body under secret.
func Sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature for body sent by vendor.
func (v *SignatureVerifier) Verify(vendor string, body []byte, signature string) error {
	secret, ok := v.secrets[vendor]
	if !ok {
		return ErrUnknownVendor
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return ErrBadSignature
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	if !VerifyHMAC(h.Sum(nil), got) {
		return ErrBadSignature
	}
	return nil
}
