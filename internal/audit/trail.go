package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var csvHeader = []string{"RunId", "Timestamp", "ItemName", "DiscoveryScriptInfo", "RemediationScriptInfo"}

// Trail appends entries to a CSV file. The file gets a header row when
// created and is only ever appended to afterwards; concurrent records are
// serialized.
type Trail struct {
	mu   sync.Mutex
	path string
}

// NewTrail builds a trail writing to the given path.
func NewTrail(path string) *Trail {
	return &Trail{path: path}
}

// Record appends one entry.
func (t *Trail) Record(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, statErr := os.Stat(t.path)
	fresh := os.IsNotExist(statErr)
	if fresh {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return fmt.Errorf("creating audit directory: %w", err)
		}
	}

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit trail: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing audit header: %w", err)
		}
	}
	if err := w.Write([]string{
		entry.RunID,
		entry.Timestamp.Format(time.RFC3339),
		entry.ItemName,
		entry.DiscoveryInfo,
		entry.RemediationInfo,
	}); err != nil {
		return fmt.Errorf("writing audit row: %w", err)
	}

	w.Flush()
	return w.Error()
}
