// Package chain implements the assembler that orchestrates a single
// event's ingestion (spec §4.5): canonicalize, hash, sign, optionally
// chain to the previous event, durably persist, then accumulate into
// the Merkle tree.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
	"github.com/vcp-chain/auditlog/pkg/event"
	"github.com/vcp-chain/auditlog/pkg/merkle"
	"github.com/vcp-chain/auditlog/pkg/signer"
	"github.com/vcp-chain/auditlog/pkg/store"
)

// ChainingPolicy decides, per event, whether prev_hash is set. The
// default policy enables chaining for every tier (spec §4.5 step 3:
// "configurable; default: enabled").
type ChainingPolicy interface {
	ChainEnabled(e *event.Event) bool
}

// AlwaysChain is the default ChainingPolicy.
type AlwaysChain struct{}

func (AlwaysChain) ChainEnabled(*event.Event) bool { return true }

// PerTierChain enables chaining only for the listed tiers.
type PerTierChain struct {
	Enabled map[event.Tier]bool
}

func (p PerTierChain) ChainEnabled(e *event.Event) bool { return p.Enabled[e.Tier] }

// SecondaryIndex is the subset of pgindex.Index's interface the
// assembler needs to keep an optional secondary query index in
// lockstep with the durable log, called after every successful Store
// (SPEC_FULL.md domain-stack wiring of lib/pq).
type SecondaryIndex interface {
	Upsert(ctx context.Context, e *event.Event) error
}

// RecoveryState tells a new Assembler how much of the durable log has
// already been committed to an external anchor (spec §4.6 "never lose
// events"), identified by the global index of the last event covered
// by a successful anchor (the persisted record's event_index_to).
// Pass the zero value when no anchor has ever been committed.
type RecoveryState struct {
	LastAnchoredIndex uint64
	HasAnchored       bool
}

// Assembler owns the live Merkle accumulator and the global index
// counter (spec §3 "Ownership"); it is the only writer of both.
type Assembler struct {
	mu       sync.Mutex
	store    *store.EventStore
	signer   signer.Signer
	acc      *merkle.Accumulator
	policy   ChainingPolicy
	index    SecondaryIndex
	log      *slog.Logger
	lastHash string // event_hash of the most recently ingested event
	baseIdx  uint64 // global index of the accumulator's leaf 0, across resets
}

// New builds an assembler over an already-open event store and a
// fresh accumulator, then replays the store's un-anchored tail back
// into the accumulator per recovery (spec §4.6 "never lose events"):
// a restart must not silently drop events accumulated into a batch
// that was never anchored. idx may be nil to disable the secondary
// index; log may be nil to use slog.Default().
func New(st *store.EventStore, sgn signer.Signer, acc *merkle.Accumulator, policy ChainingPolicy, recovery RecoveryState, idx SecondaryIndex, log *slog.Logger) *Assembler {
	if policy == nil {
		policy = AlwaysChain{}
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Assembler{store: st, signer: sgn, acc: acc, policy: policy, index: idx, log: log}
	a.recoverChainState(recovery)
	return a
}

// recoverChainState restores lastHash from the store's file-order
// replay, and rebuilds the accumulator (assumed freshly empty) from
// every event past recovery.LastAnchoredIndex, so a restart resumes
// exactly where the last successful anchor left off.
func (a *Assembler) recoverChainState(recovery RecoveryState) {
	ordered := a.store.InFileOrder()
	if len(ordered) == 0 {
		return
	}
	last := ordered[len(ordered)-1]
	a.lastHash = last.EventHash

	for _, e := range ordered {
		if e.MerkleIndex == nil {
			continue
		}
		if recovery.HasAnchored && *e.MerkleIndex <= recovery.LastAnchoredIndex {
			continue
		}
		raw, err := hex.DecodeString(e.EventHash)
		if err != nil || len(raw) != 32 {
			a.log.Warn("skipping unrecoverable leaf during accumulator rebuild", "event_id", e.EventID)
			continue
		}
		var h merkle.Hash
		copy(h[:], raw)
		a.acc.Append(h)
	}
	if recovery.HasAnchored {
		a.baseIdx = recovery.LastAnchoredIndex + 1
	}
}

// Ingest runs the full contract of spec §4.5 for one event. It is
// at-most-once per call: retries must use a fresh event_id, the
// assembler itself does not deduplicate.
func (a *Assembler) Ingest(e *event.Event) error {
	if err := e.Validate(); err != nil {
		return auditerr.Validation(e.EventID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e.ApplyIntakeDefaults(event.Now())

	if a.policy.ChainEnabled(e) && a.lastHash != "" {
		e.PrevHash = a.lastHash
	}

	canonical, err := e.CanonicalBytes()
	if err != nil {
		return auditerr.Validation(e.EventID, fmt.Errorf("canonicalize: %w", err))
	}
	sum := sha256.Sum256(canonical)
	e.EventHash = hex.EncodeToString(sum[:])

	sig, err := a.signer.Sign(sum[:])
	if err != nil {
		return auditerr.Config(fmt.Errorf("sign event %s: %w", e.EventID, err))
	}
	e.Signature = formatSignature(sig)

	if err := a.store.Store(e); err != nil {
		// Do not touch the accumulator: §4.5 failure semantics.
		return err
	}

	localIdx := a.acc.Append(merkle.Hash(sum))
	globalIdx := a.baseIdx + localIdx
	a.store.UpdateMerkleIndex(e.EventID, globalIdx)
	e.MerkleIndex = &globalIdx

	if a.index != nil {
		if err := a.index.Upsert(context.Background(), e); err != nil {
			a.log.Warn("secondary index upsert failed", "event_id", e.EventID, "error", err)
		}
	}

	a.lastHash = e.EventHash
	return nil
}

// formatSignature hex-encodes a raw Ed25519 signature; an HMAC
// test-backend signature is already ASCII (prefixed "hmac:") and
// passes through unchanged.
func formatSignature(sig []byte) string {
	if len(sig) == 64 {
		return hex.EncodeToString(sig)
	}
	return string(sig)
}

// CurrentRoot returns the accumulator's current root, for the anchor
// coordinator to sample (it owns no write access to the accumulator).
func (a *Assembler) CurrentRoot() (merkle.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc.Root()
}

// BatchSize returns the accumulator's current leaf count.
func (a *Assembler) BatchSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc.Size()
}

// ResetBatch clears the accumulator after a successful anchor commit
// and advances the global base index by the batch size (spec §4.6).
// Only the anchor coordinator may call this.
func (a *Assembler) ResetBatch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseIdx += uint64(a.acc.Size())
	a.acc.Reset()
}

// BaseIndex returns the global index of the accumulator's leaf 0.
func (a *Assembler) BaseIndex() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseIdx
}

// Proof returns the inclusion path for the accumulator-local leaf
// index (i.e. global index minus BaseIndex), for the webhook's
// proof(event_id) endpoint (spec §6).
func (a *Assembler) Proof(localIdx uint64) ([]merkle.ProofStep, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc.Proof(localIdx)
}
