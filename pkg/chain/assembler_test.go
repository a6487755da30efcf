package chain

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
	"github.com/vcp-chain/auditlog/pkg/event"
	"github.com/vcp-chain/auditlog/pkg/merkle"
	"github.com/vcp-chain/auditlog/pkg/signer"
	"github.com/vcp-chain/auditlog/pkg/store"
)

func newEvent(id string) *event.Event {
	return &event.Event{
		EventID:    id,
		Timestamp:  event.Now(),
		EventType:  "ORDER_NEW",
		Tier:       event.TierSilver,
		PolicyID:   "urn:vso:policy:tv-retail:v1",
		ClockSync:  event.ClockBestEffort,
		SystemID:   "S1",
		AccountID:  "A1",
		Payload:    event.Payload{"symbol": "BTCUSD"},
	}
}

func newTestAssembler(t *testing.T) (*Assembler, *store.EventStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "events.jsonl"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	s, err := signer.GenerateEd25519()
	require.NoError(t, err)
	return New(st, s, merkle.New(), nil, RecoveryState{}, nil, nil), st
}

func TestAssembler_IngestStampsHashSignatureAndIndex(t *testing.T) {
	a, st := newTestAssembler(t)

	e := newEvent("E-1")
	require.NoError(t, a.Ingest(e))

	assert.NotEmpty(t, e.EventHash)
	assert.NotEmpty(t, e.Signature)
	require.NotNil(t, e.MerkleIndex)
	assert.Equal(t, uint64(0), *e.MerkleIndex)
	assert.Empty(t, e.PrevHash) // first event has no predecessor

	stored, ok := st.Get("E-1")
	require.True(t, ok)
	require.NotNil(t, stored.MerkleIndex)
	assert.Equal(t, uint64(0), *stored.MerkleIndex)
}

func TestAssembler_ChainsPrevHashByDefault(t *testing.T) {
	a, _ := newTestAssembler(t)

	e1 := newEvent("E-1")
	require.NoError(t, a.Ingest(e1))
	e2 := newEvent("E-2")
	require.NoError(t, a.Ingest(e2))

	assert.Equal(t, e1.EventHash, e2.PrevHash)
	require.NotNil(t, e2.MerkleIndex)
	assert.Equal(t, uint64(1), *e2.MerkleIndex)
}

func TestAssembler_InvalidEventRefusedWithValidationError(t *testing.T) {
	a, _ := newTestAssembler(t)
	e := newEvent("")
	err := a.Ingest(e)
	require.Error(t, err)
	assert.True(t, auditerr.Is(err, auditerr.KindValidation))
}

func TestAssembler_ResetBatchAdvancesBaseIndex(t *testing.T) {
	a, _ := newTestAssembler(t)
	require.NoError(t, a.Ingest(newEvent("E-1")))
	require.NoError(t, a.Ingest(newEvent("E-2")))

	root1, err := a.CurrentRoot()
	require.NoError(t, err)
	assert.NotEqual(t, merkle.Hash{}, root1)

	a.ResetBatch()
	assert.Equal(t, uint64(2), a.BaseIndex())
	assert.Equal(t, 0, a.BatchSize())

	e3 := newEvent("E-3")
	require.NoError(t, a.Ingest(e3))
	require.NotNil(t, e3.MerkleIndex)
	assert.Equal(t, uint64(2), *e3.MerkleIndex)
}

func TestAssembler_PerTierChainDisablesForUnlistedTier(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "events.jsonl"), nil)
	require.NoError(t, err)
	defer st.Close()
	s, err := signer.GenerateEd25519()
	require.NoError(t, err)
	a := New(st, s, merkle.New(), PerTierChain{Enabled: map[event.Tier]bool{event.TierGold: true}}, RecoveryState{}, nil, nil)

	e1 := newEvent("E-1")
	require.NoError(t, a.Ingest(e1))
	e2 := newEvent("E-2")
	require.NoError(t, a.Ingest(e2))
	assert.Empty(t, e2.PrevHash)
}

// TestAssembler_RestartRebuildsAccumulatorFromUnanchoredTail covers the
// crash-between-anchors case (spec §4.6 "never lose events"): events
// stored but never covered by a successful anchor must be re-appended
// to a fresh accumulator on restart, not silently skipped.
func TestAssembler_RestartRebuildsAccumulatorFromUnanchoredTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	st, err := store.Open(path, nil)
	require.NoError(t, err)
	s, err := signer.GenerateEd25519()
	require.NoError(t, err)

	a := New(st, s, merkle.New(), nil, RecoveryState{}, nil, nil)
	require.NoError(t, a.Ingest(newEvent("E-1")))
	require.NoError(t, a.Ingest(newEvent("E-2")))

	// Simulate an anchor commit covering only E-1 (index 0), then a
	// crash before E-2's batch was ever anchored.
	require.NoError(t, st.Close())

	reopened, err := store.Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	recovered := New(reopened, s, merkle.New(), nil, RecoveryState{LastAnchoredIndex: 0, HasAnchored: true}, nil, nil)
	assert.Equal(t, uint64(1), recovered.BaseIndex())
	assert.Equal(t, 1, recovered.BatchSize())

	e2, ok := reopened.Get("E-2")
	require.True(t, ok)
	expected := merkle.New()
	raw, err := hex.DecodeString(e2.EventHash)
	require.NoError(t, err)
	var h merkle.Hash
	copy(h[:], raw)
	expected.Append(h)
	expectedRoot, err := expected.Root()
	require.NoError(t, err)

	root, err := recovered.CurrentRoot()
	require.NoError(t, err)
	assert.Equal(t, expectedRoot, root)

	// A subsequent ingest continues the global index sequence past E-2.
	e3 := newEvent("E-3")
	require.NoError(t, recovered.Ingest(e3))
	require.NotNil(t, e3.MerkleIndex)
	assert.Equal(t, uint64(2), *e3.MerkleIndex)
}
