// Package providers implements the four anchor.Provider variants
// named in spec §4.6.
package providers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

func init() {
	anchor.Register("local_file", newLocalFileProvider)
}

// LocalFileProvider writes a JSON proof file and never confirms on
// any outside authority — test-only, never valid for production
// (spec §4.6 table).
type LocalFileProvider struct {
	dir string
}

func newLocalFileProvider(opts map[string]string) (anchor.Provider, error) {
	dir := opts["proof_dir"]
	if dir == "" {
		dir = "anchor_proofs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local_file provider: mkdir %s: %w", dir, err)
	}
	return &LocalFileProvider{dir: dir}, nil
}

func (p *LocalFileProvider) Name() string { return "local_file" }

type localFileProof struct {
	AnchorID  string `json:"anchor_id"`
	Root      string `json:"root"`
	Timestamp string `json:"timestamp"`
}

func (p *LocalFileProvider) Anchor(ctx context.Context, root merkle.Hash) (anchor.Result, error) {
	id := uuid.New().String()
	proof := localFileProof{
		AnchorID:  id,
		Root:      hex.EncodeToString(root[:]),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	blob, err := json.Marshal(proof)
	if err != nil {
		return anchor.Result{}, fmt.Errorf("local_file provider: marshal proof: %w", err)
	}
	path := filepath.Join(p.dir, id+"_proof.json")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return anchor.Result{}, fmt.Errorf("local_file provider: write proof: %w", err)
	}
	return anchor.Result{TxHash: id, ProofBlob: blob, Status: anchor.StatusConfirmed}, nil
}

func (p *LocalFileProvider) Verify(ctx context.Context, root merkle.Hash, proof []byte) bool {
	var parsed localFileProof
	if err := json.Unmarshal(proof, &parsed); err != nil {
		return false
	}
	return parsed.Root == hex.EncodeToString(root[:])
}

func (p *LocalFileProvider) GetStatus(ctx context.Context, anchorID string) (anchor.Status, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, anchorID+"_proof.json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("local_file provider: no proof for anchor %s", anchorID)
	}
	return anchor.StatusConfirmed, nil
}
