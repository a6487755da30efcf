package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

func init() {
	anchor.Register("bitcoin", newBitcoinProvider)
}

const (
	opReturnMagic        = "VCP1"
	opReturnPayloadLen   = 36 // 4-byte magic + 32-byte root
	defaultConfirmations = 6
)

// BitcoinProvider builds the OP_RETURN payload for a root (spec §6
// "Bitcoin OP_RETURN format": exactly 36 bytes = ASCII "VCP1" || Merkle
// root). It broadcasts no transaction and never contacts rpcURL: Anchor
// returns a locally generated UUID as TxHash and the payload itself as
// the proof blob.
type BitcoinProvider struct {
	rpcURL        string
	client        *http.Client
	confirmations int
	// broadcast tracks anchor IDs to their OP_RETURN payload, so
	// GetStatus can be exercised without a live node in tests.
	broadcast map[string][]byte
}

func newBitcoinProvider(opts map[string]string) (anchor.Provider, error) {
	confirmations := defaultConfirmations
	p := &BitcoinProvider{
		rpcURL:        opts["bitcoin_rpc_url"],
		client:        &http.Client{Timeout: 30 * time.Second},
		confirmations: confirmations,
		broadcast:     make(map[string][]byte),
	}
	return p, nil
}

// buildOPReturn constructs the exact 36-byte payload of spec §6.
func buildOPReturn(root merkle.Hash) []byte {
	payload := make([]byte, 0, opReturnPayloadLen)
	payload = append(payload, []byte(opReturnMagic)...)
	payload = append(payload, root[:]...)
	return payload
}

func (p *BitcoinProvider) Name() string { return "bitcoin" }

func (p *BitcoinProvider) Anchor(ctx context.Context, root merkle.Hash) (anchor.Result, error) {
	payload := buildOPReturn(root)
	if len(payload) != opReturnPayloadLen {
		return anchor.Result{}, fmt.Errorf("bitcoin provider: OP_RETURN payload is %d bytes, want %d", len(payload), opReturnPayloadLen)
	}

	// No transaction is broadcast; txID is a local UUID, not a Bitcoin
	// transaction id.
	txID := uuid.New().String()
	p.broadcast[txID] = payload

	return anchor.Result{
		TxHash:    txID,
		ProofBlob: payload,
		Status:    anchor.StatusPending,
	}, nil
}

func (p *BitcoinProvider) Verify(ctx context.Context, root merkle.Hash, proof []byte) bool {
	want := buildOPReturn(root)
	if len(proof) != len(want) {
		return false
	}
	for i := range want {
		if proof[i] != want[i] {
			return false
		}
	}
	return true
}

func (p *BitcoinProvider) GetStatus(ctx context.Context, anchorID string) (anchor.Status, error) {
	if _, ok := p.broadcast[anchorID]; !ok {
		return "", fmt.Errorf("bitcoin provider: unknown anchor %s", anchorID)
	}
	// Every known anchor reports StatusPending: no node is polled and
	// p.confirmations is not consulted, so StatusConfirmed is never
	// reported.
	return anchor.StatusPending, nil
}
