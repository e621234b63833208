package models

import (
	"fmt"
	"strings"
	"time"
)

// SnapshotStatus describes the outcome of a snapshot attempt
type SnapshotStatus string

const (
	SnapshotOK                SnapshotStatus = "ok"
	SnapshotInsufficientSpace SnapshotStatus = "insufficient_space"
	SnapshotPermissionDenied  SnapshotStatus = "permission_denied"
	SnapshotIntegrityError    SnapshotStatus = "integrity_error"
	SnapshotCopyFailed        SnapshotStatus = "copy_failed"
)

// Snapshot is a full copy of the project tree taken when a version was created.
// Callers must check Verified before trusting it for a rollback.
type Snapshot struct {
	Path      string         `json:"path"`
	CreatedAt time.Time      `json:"created_at"`
	SizeBytes int64          `json:"size_bytes"`
	Verified  bool           `json:"verified"`
	Status    SnapshotStatus `json:"status"`
}

// Usable reports whether the snapshot can serve as a rollback source
func (s *Snapshot) Usable() bool {
	return s != nil && s.Verified && s.Status == SnapshotOK && s.Path != ""
}

const (
	snapshotPrefix = "backup_"
	safetyPrefix   = "safety_"
	stampLayout    = "20060102_150405"
)

// SnapshotDirName generates the directory name for a version snapshot
// Format: backup_<version>_YYYYMMDD_HHMMSS
func SnapshotDirName(versionID string, timestamp time.Time) string {
	return fmt.Sprintf("%s%s_%s", snapshotPrefix, sanitize(versionID), timestamp.Format(stampLayout))
}

// SafetyDirName generates the directory name for a pre-rollback safety backup
// Format: safety_YYYYMMDD_HHMMSS_<nanos>
func SafetyDirName(timestamp time.Time) string {
	return fmt.Sprintf("%s%s_%09d", safetyPrefix, timestamp.Format(stampLayout), timestamp.Nanosecond())
}

// IsSnapshotDir reports whether a backups/ entry is a version snapshot
func IsSnapshotDir(name string) bool {
	return strings.HasPrefix(name, snapshotPrefix)
}

// IsSafetyDir reports whether a backups/ entry is a safety backup
func IsSafetyDir(name string) bool {
	return strings.HasPrefix(name, safetyPrefix)
}

// sanitize keeps version ids usable as path components
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			result.WriteRune(r)
		default:
			result.WriteRune('-')
		}
	}
	return result.String()
}
