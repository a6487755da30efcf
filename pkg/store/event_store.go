// Package store implements the durable append-only event log (spec
// §4.4): one JSON object per line, plus an in-memory index rebuilt by
// scanning the file on open.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
	"github.com/vcp-chain/auditlog/pkg/event"
)

// EventStore is a durable, append-only log of fully stamped events.
// It never rewrites existing bytes (spec §4.4): Store only appends,
// and UpdateMerkleIndex changes only the in-memory record; merkle_index
// is recovered positionally on replay rather than written to the file.
type EventStore struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	byID     map[string]*event.Event
	byHash   map[string]*event.Event
	ordered  []*event.Event // file order, for merkle_index recovery
	log      *slog.Logger
}

// Open opens (creating if absent) the log file at path and replays it
// to rebuild the in-memory index. A truncated final line is logged
// and skipped rather than failing initialization (spec §4.4).
func Open(path string, log *slog.Logger) (*EventStore, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &EventStore{
		path:   path,
		byID:   make(map[string]*event.Event),
		byHash: make(map[string]*event.Event),
		log:    log,
	}

	if err := s.replay(); err != nil {
		return nil, auditerr.Storage("", fmt.Errorf("replay event log %s: %w", path, err))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, auditerr.Storage("", fmt.Errorf("open event log %s: %w", path, err))
	}
	s.file = f
	return s, nil
}

func (s *EventStore) replay() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(line, &e); err != nil {
			s.log.Warn("skipping unparseable event log line", "line", lineNo, "error", err)
			continue
		}
		stored := e
		// merkle_index is never written to disk (Store appends before the
		// accumulator assigns one); on replay it is recovered positionally
		// as the 0-based count of successfully parsed lines so far, which
		// is exactly the global index Ingest would have assigned it.
		idx := uint64(len(s.ordered))
		stored.MerkleIndex = &idx
		s.byID[stored.EventID] = &stored
		if stored.EventHash != "" {
			s.byHash[stored.EventHash] = &stored
		}
		s.ordered = append(s.ordered, &stored)
	}
	if err := scanner.Err(); err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	return nil
}

// Store durably appends one event as a single JSON line. The caller
// must not mutate e afterward; EventStore retains its own copy.
func (s *EventStore) Store(e *event.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return auditerr.Storage(e.EventID, fmt.Errorf("marshal event: %w", err))
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(b); err != nil {
		return auditerr.Storage(e.EventID, fmt.Errorf("append event line: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return auditerr.Storage(e.EventID, fmt.Errorf("sync event log: %w", err))
	}

	stored := *e
	s.byID[stored.EventID] = &stored
	if stored.EventHash != "" {
		s.byHash[stored.EventHash] = &stored
	}
	s.ordered = append(s.ordered, &stored)
	return nil
}

// Get returns the event with the given ID, or (nil, false).
func (s *EventStore) Get(id string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// GetByHash returns the event whose event_hash matches hex, or
// (nil, false).
func (s *EventStore) GetByHash(hex string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byHash[hex]
	return e, ok
}

// Count returns the number of stored events.
func (s *EventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

// List returns up to limit events starting at offset, sorted by
// timestamp descending (spec §4.4).
func (s *EventStore) List(limit, offset int) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := make([]*event.Event, len(s.ordered))
	copy(sorted, s.ordered)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Time().After(sorted[j].Timestamp.Time())
	})

	if offset >= len(sorted) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}

// InFileOrder returns every stored event in the order it was
// appended, the order the verifier walks (spec §4.7).
func (s *EventStore) InFileOrder() []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*event.Event, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// UpdateMerkleIndex stamps merkle_index on the in-memory record for
// id. It does not rewrite the on-disk line (spec §4.4: "the store
// never rewrites existing bytes"); on restart the index is instead
// recovered positionally, since the final index equals the count of
// lines up to that point (spec §4.5 step 5).
func (s *EventStore) UpdateMerkleIndex(id string, index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.MerkleIndex = &index
	}
}

// Close flushes and closes the underlying file.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
