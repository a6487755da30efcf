package anchor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vcp-chain/auditlog/pkg/auditerr"
)

// LoadLastAnchoredIndex reads the persisted anchor records at path and
// returns the highest event_index_to among records whose commit
// actually succeeded, so the chain assembler can rebuild its
// accumulator from exactly the un-anchored tail on restart (spec §4.6
// "never lose events"). Failed attempts never reset the batch (see
// Coordinator.Tick), so they carry no anchored range and are skipped.
// ok is false if no anchor has ever been committed.
func LoadLastAnchoredIndex(path string) (lastIndexTo uint64, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, auditerr.Storage("", fmt.Errorf("read anchor records %s: %w", path, err))
	}
	if len(data) == 0 {
		return 0, false, nil
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, false, auditerr.Storage("", fmt.Errorf("parse anchor records %s: %w", path, err))
	}

	for _, r := range records {
		if r.Status == StatusFailed {
			continue
		}
		if !ok || r.EventIndexTo > lastIndexTo {
			lastIndexTo = r.EventIndexTo
			ok = true
		}
	}
	return lastIndexTo, ok, nil
}
