package signer

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// hmacSignaturePrefix marks a signature as coming from the test-only
// HMAC backend (spec §4.2: "MUST be unambiguously distinguishable
// from real signatures in persisted output"). A real Ed25519
// signature is 64 raw bytes and never starts with this ASCII prefix.
const hmacSignaturePrefix = "hmac:"

// HMACTestSigner is a test-only fallback backend (spec §4.2), used
// when no asymmetric primitive is available. It must never be reached
// from production wiring; cmd/vcpsidecar never constructs one.
type HMACTestSigner struct {
	secret []byte
}

// NewHMACTestSigner creates a per-process HMAC signer. Passing nil
// generates a random per-process secret.
func NewHMACTestSigner(secret []byte) *HMACTestSigner {
	if secret == nil {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &HMACTestSigner{secret: secret}
}

// Sign returns hmacSignaturePrefix + hex(HMAC-SHA256(secret, msg)),
// never mistakable for a 64-byte Ed25519 signature.
func (s *HMACTestSigner) Sign(msg []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(msg)
	sum := mac.Sum(nil)
	return []byte(fmt.Sprintf("%s%x", hmacSignaturePrefix, sum)), nil
}

func (s *HMACTestSigner) Verify(msg []byte, sig []byte) bool {
	expected, err := s.Sign(msg)
	if err != nil {
		return false
	}
	return len(sig) == len(expected) && subtle.ConstantTimeCompare(sig, expected) == 1
}

// PublicKeyBytes has no meaning for a symmetric backend; it returns
// nil so callers relying on it for real verification fail loudly
// rather than silently trusting HMAC output as asymmetric.
func (s *HMACTestSigner) PublicKeyBytes() []byte { return nil }
