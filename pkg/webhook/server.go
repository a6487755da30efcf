package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	"github.com/vcp-chain/auditlog/pkg/auditerr"
	"github.com/vcp-chain/auditlog/pkg/chain"
	"github.com/vcp-chain/auditlog/pkg/event"
	"github.com/vcp-chain/auditlog/pkg/merkle"
	"github.com/vcp-chain/auditlog/pkg/signer"
	"github.com/vcp-chain/auditlog/pkg/store"
)

// SecondaryIndex is the subset of pgindex.Index's read interface the
// webhook's get_by_hash/list handlers prefer when configured
// (SPEC_FULL.md domain-stack wiring of lib/pq), falling back to the
// in-memory store on a miss or when unset.
type SecondaryIndex interface {
	EventIDByHash(ctx context.Context, hash string) (string, error)
	ListEventIDs(ctx context.Context, limit, offset int) ([]string, error)
}

// Server is the HTTP surface in front of the chain assembler, event
// store, and anchor coordinator (spec §6).
type Server struct {
	asm    *chain.Assembler
	store  *store.EventStore
	coord  *anchor.Coordinator
	pubkey signer.Signer
	auth   *Authenticator
	pgidx  SecondaryIndex
	log    *slog.Logger
}

// New builds a Server. auth may be nil, which disables bearer-token
// authentication; pgidx may be nil, which disables the secondary
// query index and serves get_by_hash/list from the in-memory store.
func New(asm *chain.Assembler, st *store.EventStore, coord *anchor.Coordinator, pubkey signer.Signer, auth *Authenticator, pgidx SecondaryIndex, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if auth == nil {
		auth = NewAuthenticator(nil, "")
	}
	return &Server{asm: asm, store: st, coord: coord, pubkey: pubkey, auth: auth, pgidx: pgidx, log: log}
}

// Mux builds the routed http.Handler for this server.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.auth.Middleware(s.handleIngest))
	mux.HandleFunc("/events/list", s.auth.Middleware(s.handleList))
	mux.HandleFunc("/events/by-hash", s.auth.Middleware(s.handleGetByHash))
	mux.HandleFunc("/verify", s.auth.Middleware(s.handleVerify))
	mux.HandleFunc("/proof", s.auth.Middleware(s.handleProof))
	mux.HandleFunc("/anchor/status", s.auth.Middleware(s.handleAnchorStatus))
	mux.HandleFunc("/anchor/force", s.auth.Middleware(s.handleForceAnchor))
	return mux
}

// handleGetByHash implements spec §4.4 "get_by_hash(hex)" over HTTP,
// preferring the secondary index when configured.
func (s *Server) handleGetByHash(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		http.Error(w, "hash query parameter is required", http.StatusBadRequest)
		return
	}

	if s.pgidx != nil {
		id, err := s.pgidx.EventIDByHash(r.Context(), hash)
		if err != nil {
			s.log.Warn("secondary index lookup failed, falling back to file index", "error", err)
		} else if id != "" {
			if e, ok := s.store.Get(id); ok {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
	}

	e, ok := s.store.GetByHash(hash)
	if !ok {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleList implements spec §4.4 "list(limit, offset)" over HTTP,
// preferring the secondary index when configured.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := atoiDefault(r.URL.Query().Get("limit"), 50)
	offset := atoiDefault(r.URL.Query().Get("offset"), 0)

	if s.pgidx != nil {
		ids, err := s.pgidx.ListEventIDs(r.Context(), limit, offset)
		if err != nil {
			s.log.Warn("secondary index list failed, falling back to file index", "error", err)
		} else {
			events := make([]*event.Event, 0, len(ids))
			for _, id := range ids {
				if e, ok := s.store.Get(id); ok {
					events = append(events, e)
				}
			}
			writeJSON(w, http.StatusOK, events)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.store.List(limit, offset))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

type ingestResponse struct {
	Success     bool    `json:"success"`
	EventID     string  `json:"event_id"`
	EventHash   string  `json:"event_hash,omitempty"`
	Signature   string  `json:"signature,omitempty"`
	MerkleIndex *uint64 `json:"merkle_index,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// handleIngest accepts a JSON body conforming to the core event
// schema (spec §6 "Ingestion (HTTP)"). Missing required fields are
// 400; any other core failure is 500.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var e event.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, ingestResponse{Success: false, Message: "malformed JSON body: " + err.Error()})
		return
	}

	if err := s.asm.Ingest(&e); err != nil {
		if auditerr.Is(err, auditerr.KindValidation) {
			writeJSON(w, http.StatusBadRequest, ingestResponse{Success: false, EventID: e.EventID, Message: err.Error()})
			return
		}
		s.log.Error("ingest failed", "event_id", e.EventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ingestResponse{Success: false, EventID: e.EventID, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success:     true,
		EventID:     e.EventID,
		EventHash:   e.EventHash,
		Signature:   e.Signature,
		MerkleIndex: e.MerkleIndex,
	})
}

type verifyResponse struct {
	Valid            bool   `json:"valid"`
	EventID          string `json:"event_id"`
	EventHash        string `json:"event_hash"`
	SignatureValid   bool   `json:"signature_valid"`
	MerkleProofValid bool   `json:"merkle_proof_valid"`
	AnchorStatus     string `json:"anchor_status"`
}

// handleVerify implements spec §6 "verify(event_id)".
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("event_id")
	e, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	canonical, err := e.CanonicalBytes()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, verifyResponse{EventID: id})
		return
	}
	sum := sha256Sum(canonical)
	hashValid := hex.EncodeToString(sum) == e.EventHash

	sigValid := false
	if s.pubkey != nil {
		sigValid = s.pubkey.Verify(sum, decodeSig(e.Signature))
	}

	proofValid := s.checkMerkleProof(e)
	anchorStatus := s.anchorStatusFor(e)

	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:            hashValid && sigValid,
		EventID:          id,
		EventHash:        e.EventHash,
		SignatureValid:   sigValid,
		MerkleProofValid: proofValid,
		AnchorStatus:     anchorStatus,
	})
}

// checkMerkleProof recomputes and checks the event's inclusion proof
// (spec §6 "merkle_proof_valid"). If the event's batch is still live,
// the proof comes straight from the current accumulator; if the batch
// has already been anchored and reset, the same batch is rebuilt from
// the durable log (by event_index_from/to) and checked against the
// anchor record's persisted root instead.
func (s *Server) checkMerkleProof(e *event.Event) bool {
	if e.MerkleIndex == nil {
		return false
	}
	dataHash, err := decodeEventHash(e.EventHash)
	if err != nil {
		return false
	}

	base := s.asm.BaseIndex()
	if *e.MerkleIndex >= base {
		localIdx := *e.MerkleIndex - base
		proof, err := s.asm.Proof(localIdx)
		if err != nil {
			return false
		}
		root, err := s.asm.CurrentRoot()
		if err != nil {
			return false
		}
		return merkle.VerifyProof(dataHash, proof, root)
	}

	record := s.findAnchorRecord(*e.MerkleIndex)
	if record == nil {
		return false
	}
	expectedRoot, err := decodeEventHash(record.Root)
	if err != nil {
		return false
	}

	acc := merkle.New()
	var localIdx uint64
	for _, stored := range s.store.InFileOrder() {
		if stored.MerkleIndex == nil {
			continue
		}
		idx := *stored.MerkleIndex
		if idx < record.EventIndexFrom || idx > record.EventIndexTo {
			continue
		}
		h, err := decodeEventHash(stored.EventHash)
		if err != nil {
			return false
		}
		leafIdx := acc.Append(h)
		if stored.EventID == e.EventID {
			localIdx = leafIdx
		}
	}
	proof, err := acc.Proof(localIdx)
	if err != nil {
		return false
	}
	return merkle.VerifyProof(dataHash, proof, expectedRoot)
}

// findAnchorRecord returns the persisted anchor record covering
// globalIdx, or nil if none does.
func (s *Server) findAnchorRecord(globalIdx uint64) *anchor.Record {
	for _, r := range s.coord.Records() {
		if globalIdx >= r.EventIndexFrom && globalIdx <= r.EventIndexTo {
			return r
		}
	}
	return nil
}

// anchorStatusFor reports the event's covering anchor record's status
// (spec §6 "anchor_status"), or "pending" while its batch is still
// accumulating toward the next anchor tick.
func (s *Server) anchorStatusFor(e *event.Event) string {
	if e.MerkleIndex == nil {
		return "unknown"
	}
	if *e.MerkleIndex >= s.asm.BaseIndex() {
		return "pending"
	}
	if r := s.findAnchorRecord(*e.MerkleIndex); r != nil {
		return string(r.Status)
	}
	return "unknown"
}

func decodeEventHash(hexStr string) (merkle.Hash, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != 32 {
		return merkle.Hash{}, fmt.Errorf("invalid event hash %q", hexStr)
	}
	var h merkle.Hash
	copy(h[:], raw)
	return h, nil
}

type proofStepJSON struct {
	Direction string `json:"direction"`
	Hash      string `json:"hash"`
}

type proofResponse struct {
	EventID   string          `json:"event_id"`
	Root      string          `json:"root"`
	ProofPath []proofStepJSON `json:"proof_path"`
}

// handleProof implements spec §6 "proof(event_id)": the inclusion
// path as an ordered list of {direction, hash}.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("event_id")
	e, ok := s.store.Get(id)
	if !ok || e.MerkleIndex == nil {
		http.Error(w, "event not found or not yet accumulated", http.StatusNotFound)
		return
	}

	// The accumulator only holds the current anchor batch; an event
	// whose batch has already been anchored and reset cannot produce a
	// live proof here (it was already covered by a persisted anchor
	// record's event_indices range instead, per §4.9).
	base := s.asm.BaseIndex()
	if *e.MerkleIndex < base {
		http.Error(w, "event's batch has already been anchored", http.StatusGone)
		return
	}
	localIdx := *e.MerkleIndex - base

	proof, err := s.asm.Proof(localIdx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	root, err := s.asm.CurrentRoot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	steps := make([]proofStepJSON, len(proof))
	for i, step := range proof {
		dir := "right"
		if step.Direction == merkle.DirLeft {
			dir = "left"
		}
		steps[i] = proofStepJSON{Direction: dir, Hash: hex.EncodeToString(step.Sibling[:])}
	}

	writeJSON(w, http.StatusOK, proofResponse{
		EventID:   id,
		Root:      hex.EncodeToString(root[:]),
		ProofPath: steps,
	})
}

type anchorStatusResponse struct {
	LastAnchorTime string  `json:"last_anchor_time"`
	NextAnchorTime string  `json:"next_anchor_time"`
	PendingEvents  int     `json:"pending_events"`
	MerkleRoot     *string `json:"merkle_root"`
	AnchorProvider string  `json:"anchor_provider"`
}

// handleAnchorStatus implements spec §6 "Anchor status (HTTP)".
func (s *Server) handleAnchorStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.coord.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, anchorStatusResponse{
		LastAnchorTime: snap.LastAnchorTime.Format("2006-01-02T15:04:05.000Z07:00"),
		NextAnchorTime: snap.NextAnchorTime.Format("2006-01-02T15:04:05.000Z07:00"),
		PendingEvents:  snap.PendingEvents,
		MerkleRoot:     snap.MerkleRoot,
		AnchorProvider: snap.AnchorProvider,
	})
}

// handleForceAnchor implements spec §6 "A force_anchor command
// triggers an immediate tick".
func (s *Server) handleForceAnchor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.coord.ForceAnchor(context.Background()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "anchored"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeSig(sig string) []byte {
	if raw, err := hex.DecodeString(sig); err == nil {
		return raw
	}
	return []byte(sig)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
