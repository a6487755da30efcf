// Package verify implements independent re-derivation of event
// integrity from a persisted log (spec §4.7): hash recomputation,
// sequence contiguity, prev_hash chain linking, Merkle root
// recomputation, and signature verification. It never short-circuits:
// a tampered event must not mask violations on the events around it.
package verify

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/vcp-chain/auditlog/pkg/event"
	"github.com/vcp-chain/auditlog/pkg/merkle"
	"github.com/vcp-chain/auditlog/pkg/signer"
)

// CheckName identifies which of the five §4.7 checks failed.
type CheckName string

const (
	CheckHash       CheckName = "hash_mismatch"
	CheckSequence   CheckName = "sequence_gap"
	CheckPrevHash   CheckName = "prev_hash_break"
	CheckMerkleRoot CheckName = "merkle_root_mismatch"
	CheckSignature  CheckName = "signature_invalid"
)

// EventResult is the per-event outcome of verification.
type EventResult struct {
	EventID      string
	Valid        bool
	FailedChecks []CheckName
}

// Report is the overall outcome of verifying a log.
type Report struct {
	Valid   bool
	Events  []EventResult
	// MerkleRootValid is true unless a SecurityObject was supplied and
	// the recomputed root diverged from it.
	MerkleRootValid bool
	ComputedRoot    string
	ExpectedRoot    string
}

// SecurityObject carries the expected Merkle root an independent
// verifier checks the log against (spec §4.7 "optionally a security
// object").
type SecurityObject struct {
	MerkleRoot string `json:"merkle_root"`
}

// Verifier independently re-derives event integrity. PublicKeySigner
// is optional: when nil, signature checks are skipped (spec §4.7 "If
// a signer public key is configured").
type Verifier struct {
	PublicKeySigner signer.Signer
}

// New returns a Verifier. sgn may be nil to skip signature checks.
func New(sgn signer.Signer) *Verifier {
	return &Verifier{PublicKeySigner: sgn}
}

// VerifyChain walks events in file order, running every applicable
// check on every event without stopping at the first failure (spec
// §4.7).
func (v *Verifier) VerifyChain(events []*event.Event, sec *SecurityObject) Report {
	report := Report{MerkleRootValid: true}

	var prev *event.Event
	var hashesInOrder []merkle.Hash
	for _, e := range events {
		result := EventResult{EventID: e.EventID, Valid: true}

		canonical, err := e.CanonicalBytes()
		var computedHash string
		if err == nil {
			sum := sha256.Sum256(canonical)
			computedHash = hex.EncodeToString(sum[:])
		}
		if err != nil || !constantTimeEqualHex(computedHash, e.EventHash) {
			result.Valid = false
			result.FailedChecks = append(result.FailedChecks, CheckHash)
		}

		if prev != nil && e.MerkleIndex != nil && prev.MerkleIndex != nil {
			if *e.MerkleIndex != *prev.MerkleIndex+1 {
				result.Valid = false
				result.FailedChecks = append(result.FailedChecks, CheckSequence)
			}
		}

		if e.PrevHash != "" && prev != nil {
			if e.PrevHash != prev.EventHash {
				result.Valid = false
				result.FailedChecks = append(result.FailedChecks, CheckPrevHash)
			}
		}

		if v.PublicKeySigner != nil && computedHash != "" {
			sumBytes, decErr := hex.DecodeString(computedHash)
			sigBytes := decodeSignature(e.Signature)
			if decErr != nil || sigBytes == nil || !v.PublicKeySigner.Verify(sumBytes, sigBytes) {
				result.Valid = false
				result.FailedChecks = append(result.FailedChecks, CheckSignature)
			}
		}

		if raw, err := hex.DecodeString(e.EventHash); err == nil && len(raw) == 32 {
			var h merkle.Hash
			copy(h[:], raw)
			hashesInOrder = append(hashesInOrder, h)
		}

		report.Events = append(report.Events, result)
		prev = e
	}

	report.Valid = true
	for _, r := range report.Events {
		if !r.Valid {
			report.Valid = false
			break
		}
	}

	if sec != nil {
		root, err := recomputeMerkleRoot(hashesInOrder)
		computedHex := ""
		if err == nil {
			computedHex = hex.EncodeToString(root[:])
		}
		report.ComputedRoot = computedHex
		report.ExpectedRoot = sec.MerkleRoot
		report.MerkleRootValid = err == nil && constantTimeEqualHex(computedHex, sec.MerkleRoot)
		if !report.MerkleRootValid {
			report.Valid = false
		}
	}

	return report
}

func constantTimeEqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// decodeSignature accepts either hex-encoded raw Ed25519 bytes or the
// HMAC test backend's ASCII form, handing each to Signer.Verify in
// the representation it expects.
func decodeSignature(sig string) []byte {
	if sig == "" {
		return nil
	}
	if raw, err := hex.DecodeString(sig); err == nil {
		return raw
	}
	return []byte(sig)
}

// recomputeMerkleRoot rebuilds the root from a fresh sequence of data
// hashes in index order (spec §4.7 step 4), independent of any live
// Accumulator.
func recomputeMerkleRoot(dataHashes []merkle.Hash) (merkle.Hash, error) {
	if len(dataHashes) == 0 {
		return merkle.Hash{}, fmt.Errorf("no event hashes to build a root from")
	}
	acc := merkle.New()
	for _, h := range dataHashes {
		acc.Append(h)
	}
	return acc.Root()
}
