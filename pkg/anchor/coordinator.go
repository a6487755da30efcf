package anchor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
	"github.com/vcp-chain/auditlog/pkg/merkle"
)

// Record is a single anchor commitment (spec §3 "Anchor record").
type Record struct {
	AnchorID       string     `json:"anchor_id"`
	Provider       string     `json:"provider"`
	Root           string     `json:"root"` // hex
	CreatedAt      time.Time  `json:"created_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	TxHash         string     `json:"tx_hash,omitempty"`
	ProofPath      string     `json:"proof_path,omitempty"`
	Status         Status     `json:"status"`
	EventIndexFrom uint64     `json:"event_index_from"`
	EventIndexTo   uint64     `json:"event_index_to"`
}

// Accumulator is the subset of the chain assembler's interface the
// coordinator needs: sampling the root and requesting a reset after a
// successful commit (spec §3 "Ownership": "the anchor coordinator
// exclusively owns anchor records; the assembler only reads the
// current root").
type Accumulator interface {
	CurrentRoot() (merkle.Hash, error)
	BatchSize() int
	BaseIndex() uint64
	ResetBatch()
}

// Coordinator periodically commits the accumulator's current root to
// an external provider (spec §4.6).
type Coordinator struct {
	mu             sync.Mutex
	asm            Accumulator
	provider       Provider
	recordsPath    string
	proofDir       string
	interval       time.Duration
	log            *slog.Logger
	records        []*Record
	lastAnchorTime time.Time
	nextAnchorTime time.Time
}

// NewCoordinator builds a Coordinator and loads any previously
// persisted anchor records from recordsPath.
func NewCoordinator(asm Accumulator, provider Provider, recordsPath, proofDir string, interval time.Duration, log *slog.Logger) (*Coordinator, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		asm:         asm,
		provider:    provider,
		recordsPath: recordsPath,
		proofDir:    proofDir,
		interval:    interval,
		log:         log,
	}
	if err := c.loadRecords(); err != nil {
		return nil, err
	}
	c.nextAnchorTime = time.Now().Add(interval)
	return c, nil
}

func (c *Coordinator) loadRecords() error {
	data, err := os.ReadFile(c.recordsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return auditerr.Storage("", fmt.Errorf("read anchor records %s: %w", c.recordsPath, err))
	}
	if len(data) == 0 {
		return nil
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return auditerr.Storage("", fmt.Errorf("parse anchor records %s: %w", c.recordsPath, err))
	}
	c.records = records
	if len(records) > 0 {
		c.lastAnchorTime = records[len(records)-1].CreatedAt
	}
	return nil
}

func (c *Coordinator) persistRecords() error {
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal anchor records: %w", err)
	}
	if err := os.WriteFile(c.recordsPath, data, 0o644); err != nil {
		return auditerr.Storage("", fmt.Errorf("write anchor records %s: %w", c.recordsPath, err))
	}
	return nil
}

// Run blocks, ticking every c.interval, until ctx is canceled. A
// channel delivers shutdown signals so the sleep can be broken early
// (spec §9 "Cooperative I/O").
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.log.Warn("anchor tick failed", "provider", c.provider.Name(), "error", err)
			}
		}
	}
}

// Tick runs one coordinator iteration: if the batch is non-empty,
// capture the root and event index range, submit to the provider,
// persist the record and proof, and reset the batch on success.
// ForceAnchor calls this directly (spec §4.6 "equivalent to running
// one tick immediately").
func (c *Coordinator) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.asm.BatchSize()
	if size == 0 {
		c.log.Info("anchor tick skipped: empty batch")
		return nil
	}

	root, err := c.asm.CurrentRoot()
	if err != nil {
		return auditerr.Integrity("", fmt.Errorf("sample root for anchor: %w", err))
	}
	base := c.asm.BaseIndex()

	record := &Record{
		AnchorID:       uuid.New().String(),
		Provider:       c.provider.Name(),
		Root:           hex.EncodeToString(root[:]),
		CreatedAt:      time.Now().UTC(),
		Status:         StatusPending,
		EventIndexFrom: base,
		EventIndexTo:   base + uint64(size) - 1,
	}

	result, err := c.provider.Anchor(ctx, root)
	if err != nil {
		record.Status = StatusFailed
		c.records = append(c.records, record)
		if persistErr := c.persistRecords(); persistErr != nil {
			c.log.Warn("failed to persist failed anchor record", "error", persistErr)
		}
		c.log.Warn("anchor commit failed, accumulator preserved for retry", "provider", c.provider.Name(), "error", err)
		return auditerr.Provider(fmt.Errorf("%s: %w", c.provider.Name(), err))
	}

	record.TxHash = result.TxHash
	record.Status = result.Status
	if result.Status == StatusConfirmed {
		now := time.Now().UTC()
		record.ConfirmedAt = &now
	}

	if len(result.ProofBlob) > 0 {
		proofPath, err := c.persistProof(record.AnchorID, result.ProofBlob)
		if err != nil {
			c.log.Warn("failed to persist anchor proof", "error", err)
		} else {
			record.ProofPath = proofPath
		}
	}

	c.records = append(c.records, record)
	if err := c.persistRecords(); err != nil {
		return err
	}

	c.lastAnchorTime = record.CreatedAt
	c.nextAnchorTime = c.lastAnchorTime.Add(c.interval)
	c.asm.ResetBatch()

	c.log.Info("anchor committed", "provider", c.provider.Name(), "anchor_id", record.AnchorID, "root", record.Root, "events", size)
	return nil
}

func (c *Coordinator) persistProof(anchorID string, blob []byte) (string, error) {
	if err := os.MkdirAll(c.proofDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", c.proofDir, err)
	}
	path := c.proofDir + "/" + anchorID + "_proof.json"
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("write proof %s: %w", path, err)
	}
	return path, nil
}

// ForceAnchor runs one tick immediately (spec §6 "A force_anchor
// command triggers an immediate tick").
func (c *Coordinator) ForceAnchor(ctx context.Context) error {
	return c.Tick(ctx)
}

// StatusSnapshot is the response shape of spec §6 "Anchor status".
type StatusSnapshot struct {
	LastAnchorTime time.Time `json:"last_anchor_time"`
	NextAnchorTime time.Time `json:"next_anchor_time"`
	PendingEvents  int       `json:"pending_events"`
	MerkleRoot     *string   `json:"merkle_root"`
	AnchorProvider string    `json:"anchor_provider"`
}

// Status reports the coordinator's current view for the HTTP status
// endpoint.
func (c *Coordinator) Status() (StatusSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := StatusSnapshot{
		LastAnchorTime: c.lastAnchorTime,
		NextAnchorTime: c.nextAnchorTime,
		PendingEvents:  c.asm.BatchSize(),
		AnchorProvider: c.provider.Name(),
	}
	if snap.PendingEvents > 0 {
		root, err := c.asm.CurrentRoot()
		if err != nil {
			return snap, err
		}
		hexRoot := hex.EncodeToString(root[:])
		snap.MerkleRoot = &hexRoot
	}
	return snap, nil
}

// Records returns a copy of every persisted anchor record.
func (c *Coordinator) Records() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Record, len(c.records))
	copy(out, c.records)
	return out
}
