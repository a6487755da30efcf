package pgindex

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vcp-chain/auditlog/pkg/event"
)

// testDSN returns the DSN for a real Postgres instance configured via
// PGINDEX_TEST_DSN; these tests are skipped otherwise rather than
// faking the driver, since this index's only job is to exercise the
// real lib/pq wire protocol.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PGINDEX_TEST_DSN")
	if dsn == "" {
		t.Skip("PGINDEX_TEST_DSN not set; skipping Postgres-backed index test")
	}
	return dsn
}

func TestIndex_UpsertAndLookupByHash(t *testing.T) {
	idx, err := Open(testDSN(t))
	require.NoError(t, err)
	defer idx.Close()

	mi := uint64(4)
	e := &event.Event{
		EventID:     "E-pgindex-1",
		Timestamp:   event.Now(),
		AccountID:   "A1",
		SystemID:    "S1",
		EventHash:   "deadbeef",
		MerkleIndex: &mi,
	}
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, e))

	id, err := idx.EventIDByHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "E-pgindex-1", id)
}

func TestIndex_ListEventIDsPaginates(t *testing.T) {
	idx, err := Open(testDSN(t))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e := &event.Event{
			EventID:   "E-pgindex-list-" + string(rune('a'+i)),
			Timestamp: event.Now(),
			AccountID: "A1",
			SystemID:  "S1",
			EventHash: "hash-" + string(rune('a'+i)),
		}
		require.NoError(t, idx.Upsert(ctx, e))
	}

	ids, err := idx.ListEventIDs(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
