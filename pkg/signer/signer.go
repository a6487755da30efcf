// Package signer implements Ed25519 signing and verification over
// 32-byte event hashes (spec §4.2). Producers sign with a loaded
// private key; verifiers check signatures against a public key they
// already trust out-of-band.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
)

// Signer signs and verifies messages (in this system, always a raw
// 32-byte SHA-256 event hash, never its hex form).
type Signer interface {
	// Sign returns a 64-byte Ed25519 signature, or a test-backend
	// signature distinguishable as described on HMACTestSigner.
	Sign(msg []byte) ([]byte, error)
	// Verify never errors: any cryptographic failure reports false
	// (spec §4.2).
	Verify(msg []byte, sig []byte) bool
	PublicKeyBytes() []byte
}

const (
	pemBlockPrivateKey = "PRIVATE KEY"
	pemBlockPublicKey  = "PUBLIC KEY"
)

// Ed25519Signer is the production signer/verifier.
type Ed25519Signer struct {
	priv ed25519.PrivateKey // nil if this instance is verify-only
	pub  ed25519.PublicKey
}

// GenerateEd25519 creates a fresh keypair.
func GenerateEd25519() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, auditerr.Config(fmt.Errorf("generate ed25519 key: %w", err))
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// LoadEd25519 loads a PKCS#8-encoded private key and a
// SubjectPublicKeyInfo-encoded public key, both PEM-wrapped (spec §6
// "Key material").
func LoadEd25519(privateKeyPath, publicKeyPath string) (*Ed25519Signer, error) {
	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, auditerr.Config(fmt.Errorf("read private key: %w", err))
	}
	block, _ := pem.Decode(privPEM)
	if block == nil || block.Type != pemBlockPrivateKey {
		return nil, auditerr.Config(fmt.Errorf("private key %s is not a valid PKCS#8 PEM block", privateKeyPath))
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, auditerr.Config(fmt.Errorf("parse PKCS#8 private key: %w", err))
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, auditerr.Config(fmt.Errorf("private key is not Ed25519"))
	}

	pub, err := loadEd25519PublicKey(publicKeyPath)
	if err != nil {
		return nil, err
	}

	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// LoadEd25519PublicOnly loads just the public key, for verifier-only
// use (the verifier never needs a private key).
func LoadEd25519PublicOnly(publicKeyPath string) (*Ed25519Signer, error) {
	pub, err := loadEd25519PublicKey(publicKeyPath)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{pub: pub}, nil
}

func loadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	pubPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, auditerr.Config(fmt.Errorf("read public key: %w", err))
	}
	block, _ := pem.Decode(pubPEM)
	if block == nil || block.Type != pemBlockPublicKey {
		return nil, auditerr.Config(fmt.Errorf("public key %s is not a valid SubjectPublicKeyInfo PEM block", path))
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, auditerr.Config(fmt.Errorf("parse SubjectPublicKeyInfo public key: %w", err))
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, auditerr.Config(fmt.Errorf("public key is not Ed25519"))
	}
	return pub, nil
}

// Save persists the keypair as PKCS#8/SubjectPublicKeyInfo PEM, with
// the private key file restricted to owner read/write (spec §6).
func (s *Ed25519Signer) Save(privateKeyPath, publicKeyPath string) error {
	if s.priv == nil {
		return auditerr.Config(fmt.Errorf("no private key loaded to save"))
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(s.priv)
	if err != nil {
		return auditerr.Config(fmt.Errorf("marshal PKCS#8 private key: %w", err))
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: pemBlockPrivateKey, Bytes: privBytes})
	if err := os.WriteFile(privateKeyPath, privPEM, 0o600); err != nil {
		return auditerr.Config(fmt.Errorf("write private key: %w", err))
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(s.pub)
	if err != nil {
		return auditerr.Config(fmt.Errorf("marshal SubjectPublicKeyInfo public key: %w", err))
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: pemBlockPublicKey, Bytes: pubBytes})
	if err := os.WriteFile(publicKeyPath, pubPEM, 0o644); err != nil {
		return auditerr.Config(fmt.Errorf("write public key: %w", err))
	}
	return nil
}

// Sign signs msg (normally a 32-byte event hash) with the loaded
// private key. Signing without a private key is a ConfigError (spec
// §4.2 "Signing without a loaded private key fails with a
// configuration error").
func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, auditerr.Config(fmt.Errorf("signer has no private key loaded"))
	}
	return ed25519.Sign(s.priv, msg), nil
}

// Verify never errors; any cryptographic failure reports false.
func (s *Ed25519Signer) Verify(msg []byte, sig []byte) bool {
	if s.pub == nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, msg, sig)
}

func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return append([]byte(nil), s.pub...)
}
