// Package merkle implements the RFC 6962-style Merkle accumulator
// (spec §4.3): a growing sequence of leaf hashes that can produce a
// root and per-leaf inclusion proofs, with domain-separated SHA-256
// at every layer so leaf and internal hashes can never collide.
package merkle

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
)

// ErrEmptyTree reports an accumulator with no leaves. Root returns it
// wrapped in an auditerr integrity error (errors.Is matches it); Proof
// returns it as-is, both for an empty tree and for an index past the
// last leaf.
var ErrEmptyTree = fmt.Errorf("merkle: tree is empty")

const (
	leafPrefix     byte = 0x00
	internalPrefix byte = 0x01
)

// Hash is a 32-byte SHA-256 digest, used for leaf hashes, node hashes,
// and roots alike.
type Hash [32]byte

func leafHash(dataHash Hash) Hash {
	var buf [33]byte
	buf[0] = leafPrefix
	copy(buf[1:], dataHash[:])
	return sha256.Sum256(buf[:])
}

func nodeHash(left, right Hash) Hash {
	var buf [65]byte
	buf[0] = internalPrefix
	copy(buf[1:33], left[:])
	copy(buf[33:], right[:])
	return sha256.Sum256(buf[:])
}

// Accumulator is the live Merkle tree over the current anchor batch.
// It is owned exclusively by the chain assembler (spec §3
// "Ownership"); Reset is called only by the anchor coordinator after
// a successful commit.
type Accumulator struct {
	mu     sync.Mutex
	leaves []Hash
	levels [][]Hash // levels[0] is the leaf layer; last is the root layer
	dirty  bool
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{dirty: true}
}

// Append computes the leaf hash for dataHash, appends it, and returns
// its zero-based index within the current batch.
func (a *Accumulator) Append(dataHash Hash) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = append(a.leaves, leafHash(dataHash))
	a.dirty = true
	return uint64(len(a.leaves) - 1)
}

// Size returns the number of leaves in the current batch.
func (a *Accumulator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leaves)
}

// Root rebuilds the tree if dirty and returns the current root. It
// fails with ErrEmptyTree if no leaves have been appended.
func (a *Accumulator) Root() (Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.leaves) == 0 {
		return Hash{}, auditerr.Integrity("", ErrEmptyTree)
	}
	a.rebuildIfDirty()
	last := a.levels[len(a.levels)-1]
	return last[0], nil
}

// rebuildIfDirty must be called with a.mu held.
func (a *Accumulator) rebuildIfDirty() {
	if !a.dirty && len(a.levels) > 0 {
		return
	}
	levels := [][]Hash{append([]Hash(nil), a.leaves...)}
	current := levels[0]
	for len(current) > 1 {
		current = nextLevel(current)
		levels = append(levels, current)
	}
	a.levels = levels
	a.dirty = false
}

// nextLevel pairs adjacent nodes left-to-right, duplicating the last
// node when the layer has an odd count (RFC 6962's unbalanced case).
func nextLevel(level []Hash) []Hash {
	padded := level
	if len(padded)%2 != 0 {
		padded = append(append([]Hash(nil), level...), level[len(level)-1])
	}
	next := make([]Hash, len(padded)/2)
	for i := 0; i < len(padded); i += 2 {
		next[i/2] = nodeHash(padded[i], padded[i+1])
	}
	return next
}

// Reset clears the accumulator's leaves, starting a fresh batch. It
// is permitted only after a root has been successfully anchored
// (spec §3, §4.6); callers outside the anchor coordinator must not
// call this.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = nil
	a.levels = nil
	a.dirty = true
}
