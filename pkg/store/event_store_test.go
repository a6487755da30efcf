package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/event"
)

func sampleEvent(id string) *event.Event {
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
		VCPVersion: "1.1",
		EventHash:  "hash-" + id,
	}
}

func TestEventStore_StoreAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	e := sampleEvent("E-1")
	require.NoError(t, s.Store(e))

	got, ok := s.Get("E-1")
	require.True(t, ok)
	assert.Equal(t, "E-1", got.EventID)

	byHash, ok := s.GetByHash("hash-E-1")
	require.True(t, ok)
	assert.Equal(t, "E-1", byHash.EventID)

	assert.Equal(t, 1, s.Count())
}

func TestEventStore_ReplayRebuildsIndexOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleEvent("E-1")))
	require.NoError(t, s.Store(sampleEvent("E-2")))
	require.NoError(t, s.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Count())
	_, ok := reopened.Get("E-2")
	assert.True(t, ok)
}

func TestEventStore_TruncatedFinalLineIsSkippedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleEvent("E-1")))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event_id":"E-2","event_hash":"trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
	_, ok := reopened.Get("E-2")
	assert.False(t, ok)
}

func TestEventStore_ListSortedByTimestampDescending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	e1 := sampleEvent("E-1")
	e2 := sampleEvent("E-2")
	e2.Timestamp = event.Timestamp(e1.Timestamp.Time().Add(1))
	require.NoError(t, s.Store(e1))
	require.NoError(t, s.Store(e2))

	list := s.List(10, 0)
	require.Len(t, list, 2)
	assert.Equal(t, "E-2", list[0].EventID)
}

func TestEventStore_UpdateMerkleIndexDoesNotTouchDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Store(sampleEvent("E-1")))
	s.UpdateMerkleIndex("E-1", 0)

	got, ok := s.Get("E-1")
	require.True(t, ok)
	require.NotNil(t, got.MerkleIndex)
	assert.Equal(t, uint64(0), *got.MerkleIndex)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"merkle_index"`)
}
