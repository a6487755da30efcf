package signer

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
)

func TestEd25519Signer_SignVerifyRoundtrip(t *testing.T) {
	s, err := GenerateEd25519()
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("hello world"))
	sig, err := s.Sign(hash[:])
	require.NoError(t, err)
	assert.Len(t, sig, 64)
	assert.True(t, s.Verify(hash[:], sig))

	other := sha256.Sum256([]byte("goodbye"))
	assert.False(t, s.Verify(other[:], sig))
}

func TestEd25519Signer_VerifyNeverErrorsOnGarbage(t *testing.T) {
	s, err := GenerateEd25519()
	require.NoError(t, err)
	assert.False(t, s.Verify([]byte("x"), []byte("not a signature")))
	assert.False(t, s.Verify([]byte("x"), nil))
}

func TestEd25519Signer_SignWithoutPrivateKeyIsConfigError(t *testing.T) {
	s, err := GenerateEd25519()
	require.NoError(t, err)

	verifyOnly := &Ed25519Signer{pub: s.pub}
	_, signErr := verifyOnly.Sign([]byte("msg"))
	require.Error(t, signErr)
	assert.True(t, auditerr.Is(signErr, auditerr.KindConfig))
}

func TestEd25519Signer_SaveAndLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "priv.pem")
	pubPath := filepath.Join(dir, "pub.pem")

	s, err := GenerateEd25519()
	require.NoError(t, err)
	require.NoError(t, s.Save(privPath, pubPath))

	info, err := os.Stat(privPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadEd25519(privPath, pubPath)
	require.NoError(t, err)
	assert.Equal(t, s.PublicKeyBytes(), loaded.PublicKeyBytes())

	hash := sha256.Sum256([]byte("data"))
	sig, err := loaded.Sign(hash[:])
	require.NoError(t, err)
	assert.True(t, s.Verify(hash[:], sig))

	verifyOnly, err := LoadEd25519PublicOnly(pubPath)
	require.NoError(t, err)
	assert.True(t, verifyOnly.Verify(hash[:], sig))
	_, signErr := verifyOnly.Sign(hash[:])
	assert.Error(t, signErr)
}

func TestHMACTestSigner_RoundtripAndDistinguishability(t *testing.T) {
	s := NewHMACTestSigner([]byte("process-secret"))
	msg := []byte("event hash bytes")
	sig, err := s.Sign(msg)
	require.NoError(t, err)

	assert.True(t, s.Verify(msg, sig))
	assert.False(t, s.Verify([]byte("different"), sig))
	assert.Contains(t, string(sig), hmacSignaturePrefix)
	assert.NotEqual(t, 64, len(sig)) // never confusable with a raw Ed25519 signature
}
