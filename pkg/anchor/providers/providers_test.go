package providers_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	_ "github.com/vcp-chain/auditlog/pkg/anchor/providers"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

func TestBitcoinProvider_OPReturnIsExactly36Bytes(t *testing.T) {
	p, err := anchor.New("bitcoin", nil)
	require.NoError(t, err)

	root := merkle.Hash{}
	for i := range root {
		root[i] = byte(i)
	}

	result, err := p.Anchor(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, result.ProofBlob, 36)
	assert.Equal(t, "VCP1", string(result.ProofBlob[:4]))
	assert.Equal(t, root[:], result.ProofBlob[4:])
	assert.True(t, p.Verify(context.Background(), root, result.ProofBlob))

	otherRoot := merkle.Hash{1}
	assert.False(t, p.Verify(context.Background(), otherRoot, result.ProofBlob))
}

func TestLocalFileProvider_AnchorWritesProofAndVerifies(t *testing.T) {
	dir := t.TempDir()
	p, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	root := merkle.Hash{42}
	result, err := p.Anchor(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusConfirmed, result.Status)
	assert.True(t, p.Verify(context.Background(), root, result.ProofBlob))

	status, err := p.GetStatus(context.Background(), result.TxHash)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusConfirmed, status)
}

func TestOpenTimestampsProvider_StartsPending(t *testing.T) {
	p, err := anchor.New("opentimestamps", nil)
	require.NoError(t, err)

	root := merkle.Hash{3}
	result, err := p.Anchor(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusPending, result.Status)

	status, err := p.GetStatus(context.Background(), result.TxHash)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusPending, status)
}

func TestRFC3161Provider_ConfirmsOnReceipt(t *testing.T) {
	p, err := anchor.New("rfc3161_tsa", nil)
	require.NoError(t, err)

	root := merkle.Hash{8}
	result, err := p.Anchor(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusConfirmed, result.Status)
	assert.True(t, p.Verify(context.Background(), root, result.ProofBlob))
}

func TestNew_UnknownProviderErrors(t *testing.T) {
	_, err := anchor.New("does_not_exist", nil)
	assert.Error(t, err)
}
