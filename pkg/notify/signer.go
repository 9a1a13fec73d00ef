package notify

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the HTTP header name carrying the HMAC signature.
const SignatureHeader = "X-Outdial-Signature-256"

// SecretPrefix marks endpoint secrets issued by this service. It identifies
// the secret kind to the host and never enters the HMAC key.
const SecretPrefix = "odsk_"

// Sign produces an HMAC-SHA256 signature over the payload in the format
// "sha256=<hex>", keyed by the secret with its display prefix stripped.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimPrefix(secret, SecretPrefix)))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the signature matches the payload under the secret.
// A bare hex digest is accepted alongside the "sha256="-prefixed form.
func Verify(secret string, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		signature = "sha256=" + signature
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateSecret returns a fresh endpoint secret: the prefix marker followed
// by 32 cryptographically random bytes, hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
