// Package anchor implements the external anchor coordinator (spec
// §4.6): periodic commitment of the Merkle accumulator's current root
// to a pluggable external timestamping provider, with durable proof
// storage and status tracking.
package anchor

import (
	"context"
	"fmt"

	"github.com/vcp-chain/auditlog/pkg/merkle"
)

// Status is an anchor record's lifecycle state (spec §3 "Anchor
// record").
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Result is what a Provider returns from a successful anchor call.
type Result struct {
	TxHash     string // provider-specific transaction/calendar identifier
	ProofBlob  []byte // opaque, provider-specific proof payload
	Status     Status
}

// Provider is the pluggable external timestamping backend (spec §4.6
// "Provider interface"). Four variants are specified:
// opentimestamps, bitcoin, rfc3161_tsa, local_file.
type Provider interface {
	Name() string
	Anchor(ctx context.Context, root merkle.Hash) (Result, error)
	Verify(ctx context.Context, root merkle.Hash, proof []byte) bool
	GetStatus(ctx context.Context, anchorID string) (Status, error)
}

// Constructor builds a Provider from its configuration options. The
// registry keys constructors by provider name (spec §4.9 "Provider
// polymorphism": a name→constructor map, as the Python
// ANCHOR_PROVIDERS dict does it).
type Constructor func(opts map[string]string) (Provider, error)

var registry = map[string]Constructor{}

// Register adds a provider constructor under name. Called from each
// provider implementation's init().
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New builds a Provider by name using the registered constructor.
func New(name string, opts map[string]string) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("anchor: unknown provider %q", name)
	}
	return ctor(opts)
}
