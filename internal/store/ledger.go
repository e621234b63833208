package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pders01/rollguard/internal/models"
)

const (
	ledgerFile  = "versions.jsonl"
	currentFile = "current"
	stableFile  = "stable.json"
	lockFile    = "ledger.lock"
	treeLock    = "tree.lock"
)

const (
	opCreate   = "create"
	opRollback = "rollback"
)

// record is one line of the append-only version ledger
type record struct {
	Op      string                  `json:"op"`
	At      time.Time               `json:"at"`
	Version *models.Version         `json:"version,omitempty"`
	Attempt *models.RollbackAttempt `json:"attempt,omitempty"`
}

// pointer is the persisted current-version pointer
type pointer struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// appendRecord writes one ledger line and syncs it to disk
func appendRecord(dir string, r record) error {
	f, err := os.OpenFile(filepath.Join(dir, ledgerFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(r); err != nil {
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// readLedger reads every record from the ledger, skipping malformed lines
func readLedger(dir string, logger *slog.Logger) ([]record, error) {
	f, err := os.Open(filepath.Join(dir, ledgerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line limit
	line := 0
	for scanner.Scan() {
		line++
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			logger.Warn("skipping malformed ledger line", "line", line, "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}

// writeJSONAtomic replaces path with the JSON encoding of v
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
