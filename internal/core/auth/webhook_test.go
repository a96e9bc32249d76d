package auth

import (
	"strings"
	"testing"
)

func TestSignatureVerifier(t *testing.T) {
	secret := []byte(strings.Repeat("s", 32))
	v := NewSignatureVerifier(map[string][]byte{"mailer": secret})
	body := []byte(`{"vendorMessageId":"vm-1","status":"delivered"}`)
	good := Sign(secret, body)

	tests := []struct {
		name      string
		vendor    string
		body      []byte
		signature string
		want      error
	}{
		{"valid", "mailer", body, good, nil},
		{"valid without prefix", "mailer", body, strings.TrimPrefix(good, "sha256="), nil},
		{"unknown vendor", "smsco", body, good, ErrUnknownVendor},
		{"missing", "mailer", body, "", ErrMissingSignature},
		{"not hex", "mailer", body, "sha256=zz", ErrBadSignature},
		{"tampered body", "mailer", []byte(string(body) + " "), good, ErrBadSignature},
		{"wrong secret", "mailer", body, Sign([]byte("other"), body), ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Verify(tt.vendor, tt.body, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}
