package providers

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

func init() {
	anchor.Register("opentimestamps", newOpenTimestampsProvider)
}

// OpenTimestampsProvider records roots under OpenTimestamps semantics
// (spec §4.6 table) without contacting a calendar: calendarURL is
// stored but no request is sent. Anchor returns StatusPending with the
// hex root as the proof blob, and GetStatus reports StatusPending for
// every anchor it issued; no anchor is ever upgraded to confirmed.
type OpenTimestampsProvider struct {
	calendarURL string
	client      *http.Client
	// pending tracks the anchor IDs this process has issued, so
	// GetStatus can tell known anchors from unknown ones.
	pending map[string]merkle.Hash
}

func newOpenTimestampsProvider(opts map[string]string) (anchor.Provider, error) {
	url := opts["opentimestamps_url"]
	if url == "" {
		url = "https://alice.btc.calendar.opentimestamps.org"
	}
	return &OpenTimestampsProvider{
		calendarURL: url,
		client:      &http.Client{Timeout: 30 * time.Second},
		pending:     make(map[string]merkle.Hash),
	}, nil
}

func (p *OpenTimestampsProvider) Name() string { return "opentimestamps" }

func (p *OpenTimestampsProvider) Anchor(ctx context.Context, root merkle.Hash) (anchor.Result, error) {
	id := uuid.New().String()
	p.pending[id] = root

	// No calendar request is made; the proof blob is the hex-encoded
	// root, not a calendar commitment.
	return anchor.Result{
		TxHash:    id,
		ProofBlob: []byte(hex.EncodeToString(root[:])),
		Status:    anchor.StatusPending,
	}, nil
}

func (p *OpenTimestampsProvider) Verify(ctx context.Context, root merkle.Hash, proof []byte) bool {
	return string(proof) == hex.EncodeToString(root[:])
}

func (p *OpenTimestampsProvider) GetStatus(ctx context.Context, anchorID string) (anchor.Status, error) {
	if _, ok := p.pending[anchorID]; !ok {
		return "", fmt.Errorf("opentimestamps provider: unknown anchor %s", anchorID)
	}
	// No calendar is polled; StatusPending is the only status reported.
	return anchor.StatusPending, nil
}
