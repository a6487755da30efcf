package anchor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	_ "github.com/vcp-chain/auditlog/pkg/anchor/providers"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

type fakeAccumulator struct {
	size     int
	base     uint64
	root     merkle.Hash
	resetHit bool
}

func (f *fakeAccumulator) CurrentRoot() (merkle.Hash, error) { return f.root, nil }
func (f *fakeAccumulator) BatchSize() int                    { return f.size }
func (f *fakeAccumulator) BaseIndex() uint64                 { return f.base }
func (f *fakeAccumulator) ResetBatch() {
	f.resetHit = true
	f.base += uint64(f.size)
	f.size = 0
}

func TestCoordinator_TickSkipsEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	provider, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	acc := &fakeAccumulator{size: 0}
	c, err := anchor.NewCoordinator(acc, provider, filepath.Join(dir, "anchors.json"), filepath.Join(dir, "proofs"), time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, c.Tick(context.Background()))
	assert.False(t, acc.resetHit)
	assert.Empty(t, c.Records())
}

func TestCoordinator_TickCommitsAndResetsBatch(t *testing.T) {
	dir := t.TempDir()
	provider, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	acc := &fakeAccumulator{size: 3, base: 0, root: merkle.Hash{1, 2, 3}}
	c, err := anchor.NewCoordinator(acc, provider, filepath.Join(dir, "anchors.json"), filepath.Join(dir, "proofs"), time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, c.Tick(context.Background()))
	assert.True(t, acc.resetHit)
	assert.Equal(t, uint64(3), acc.base)

	records := c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, anchor.StatusConfirmed, records[0].Status)
	assert.Equal(t, uint64(0), records[0].EventIndexFrom)
	assert.Equal(t, uint64(2), records[0].EventIndexTo)
	assert.NotEmpty(t, records[0].ProofPath)
}

func TestCoordinator_ForceAnchorRunsImmediateTick(t *testing.T) {
	dir := t.TempDir()
	provider, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	acc := &fakeAccumulator{size: 1, root: merkle.Hash{9}}
	c, err := anchor.NewCoordinator(acc, provider, filepath.Join(dir, "anchors.json"), filepath.Join(dir, "proofs"), 24*time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, c.ForceAnchor(context.Background()))
	assert.Len(t, c.Records(), 1)
}

func TestCoordinator_StatusReportsPendingEventsAndRoot(t *testing.T) {
	dir := t.TempDir()
	provider, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	acc := &fakeAccumulator{size: 2, root: merkle.Hash{7}}
	c, err := anchor.NewCoordinator(acc, provider, filepath.Join(dir, "anchors.json"), filepath.Join(dir, "proofs"), time.Hour, nil)
	require.NoError(t, err)

	snap, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.PendingEvents)
	require.NotNil(t, snap.MerkleRoot)
	assert.Equal(t, "local_file", snap.AnchorProvider)
}

func TestCoordinator_RecordsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	recordsPath := filepath.Join(dir, "anchors.json")
	provider, err := anchor.New("local_file", map[string]string{"proof_dir": filepath.Join(dir, "proofs")})
	require.NoError(t, err)

	acc := &fakeAccumulator{size: 1, root: merkle.Hash{5}}
	c, err := anchor.NewCoordinator(acc, provider, recordsPath, filepath.Join(dir, "proofs"), time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, c.Tick(context.Background()))

	reopened, err := anchor.NewCoordinator(&fakeAccumulator{}, provider, recordsPath, filepath.Join(dir, "proofs"), time.Hour, nil)
	require.NoError(t, err)
	assert.Len(t, reopened.Records(), 1)
}
