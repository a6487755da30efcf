// Package event defines the audit event record (spec §3): the closed
// set of core fields that participate in hashing, plus the integrity
// attributes stamped onto it by the chain assembler.
package event

import (
	"fmt"

	"github.com/vcp-chain/auditlog/pkg/canonicalize"
)

// Tier is the compliance tier, controlling anchor cadence (§4.6) and
// clock-sync expectations.
type Tier string

const (
	TierPlatinum Tier = "PLATINUM"
	TierGold     Tier = "GOLD"
	TierSilver   Tier = "SILVER"
)

func (t Tier) Valid() bool {
	switch t {
	case TierPlatinum, TierGold, TierSilver:
		return true
	}
	return false
}

// ClockSync is the producer's declared wall-clock quality.
type ClockSync string

const (
	ClockPTPLocked  ClockSync = "PTP_LOCKED"
	ClockNTPSynced  ClockSync = "NTP_SYNCED"
	ClockBestEffort ClockSync = "BEST_EFFORT"
	ClockUnreliable ClockSync = "UNRELIABLE"
)

func (c ClockSync) Valid() bool {
	switch c {
	case ClockPTPLocked, ClockNTPSynced, ClockBestEffort, ClockUnreliable:
		return true
	}
	return false
}

// Common event type categories (spec §1: order lifecycle, algorithmic
// decisions, risk breaches, system lifecycle). The set is open: the
// webhook ingestion boundary accepts any non-empty event_type string,
// it is not validated against this list.
const (
	EventTypeOrderNew        = "ORDER_NEW"
	EventTypeOrderCancel     = "ORDER_CANCEL"
	EventTypeOrderFill       = "ORDER_FILL"
	EventTypePositionUpdate  = "POSITION_UPDATE"
	EventTypeAlgoDecision    = "ALGO_DECISION"
	EventTypeRiskBreach      = "RISK_BREACH"
	EventTypeSystemLifecycle = "SYSTEM_LIFECYCLE"
)

// DefaultVCPVersion is used when an inbound event omits vcp_version
// (chain assembler intake step, §4.5.1).
const DefaultVCPVersion = "1.1"

// Payload is the event's arbitrary nested body: a map from string keys
// to JSON-representable values (spec §9 "Dynamic payload typing" — a
// sum of null | bool | number | string | array | map, modeled here as
// the dynamically typed values decoding/json already produces).
type Payload map[string]interface{}

// Event is a single audit record. CoreFields lists exactly the
// fields that participate in hashing (spec §4.1 rule 1); everything
// else here is transport/bookkeeping metadata.
type Event struct {
	EventID    string    `json:"event_id"`
	Timestamp  Timestamp `json:"timestamp"`
	EventType  string    `json:"event_type"`
	Tier       Tier      `json:"tier"`
	PolicyID   string    `json:"policy_id"`
	ClockSync  ClockSync `json:"clock_sync"`
	SystemID   string    `json:"system_id"`
	AccountID  string    `json:"account_id"`
	Payload    Payload   `json:"payload"`
	VCPVersion string    `json:"vcp_version"`

	// ReceivedAt is intake metadata (§4.5 step 1); it does not
	// participate in canonicalization or hashing.
	ReceivedAt Timestamp `json:"received_at,omitempty"`

	// Integrity attributes, stamped once by the chain assembler
	// (§4.5) and never mutated afterward.
	EventHash   string  `json:"event_hash,omitempty"`   // hex(sha256(CanonicalBytes()))
	Signature   string  `json:"signature,omitempty"`    // hex, or "hmac:"-prefixed test signature
	MerkleIndex *uint64 `json:"merkle_index,omitempty"` // nil until stamped
	PrevHash    string  `json:"prev_hash,omitempty"`    // hex, empty if absent (§3 invariant)
}

// ApplyIntakeDefaults fills fields the producer may have omitted
// (spec §4.5 step 1): received_at and vcp_version.
func (e *Event) ApplyIntakeDefaults(now Timestamp) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.VCPVersion == "" {
		e.VCPVersion = DefaultVCPVersion
	}
}

// Validate checks the required-field invariants a ValidationError
// covers (spec §7): missing fields or type/enum mismatches. It does
// not check integrity attributes — those are populated downstream by
// the chain assembler.
func (e *Event) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required")
	case e.EventType == "":
		return fmt.Errorf("event_type is required")
	case !e.Tier.Valid():
		return fmt.Errorf("tier %q is not one of PLATINUM|GOLD|SILVER", e.Tier)
	case e.PolicyID == "":
		return fmt.Errorf("policy_id is required")
	case !e.ClockSync.Valid():
		return fmt.Errorf("clock_sync %q is not a recognized value", e.ClockSync)
	case e.SystemID == "":
		return fmt.Errorf("system_id is required")
	case e.AccountID == "":
		return fmt.Errorf("account_id is required")
	}
	return nil
}

// CoreFields returns exactly the closed field set of spec §4.1 rule 1,
// as the generic map canonicalize.JCS expects. prev_hash is included
// only when non-empty (rule 1: "otherwise it is omitted, not emitted
// as null").
func (e *Event) CoreFields() map[string]interface{} {
	m := map[string]interface{}{
		"account_id":  e.AccountID,
		"clock_sync":  string(e.ClockSync),
		"event_id":    e.EventID,
		"event_type":  e.EventType,
		"payload":     map[string]interface{}(e.Payload),
		"policy_id":   e.PolicyID,
		"system_id":   e.SystemID,
		"tier":        string(e.Tier),
		"timestamp":   e.Timestamp.String(),
		"vcp_version": e.VCPVersion,
	}
	if e.PrevHash != "" {
		m["prev_hash"] = e.PrevHash
	}
	return m
}

// CanonicalBytes returns the byte-exact serialization that is hashed
// to produce EventHash (spec §4.1).
func (e *Event) CanonicalBytes() ([]byte, error) {
	return canonicalize.JCS(e.CoreFields())
}
