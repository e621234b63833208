package models

import "time"

// Version represents one recorded release point of the project tree
type Version struct {
	ID             string    `json:"id"`
	CommitRef      string    `json:"commit_ref"`
	CreatedAt      time.Time `json:"created_at"`
	Author         string    `json:"author"`
	Description    string    `json:"description"`
	ChangeNotes    []string  `json:"change_notes,omitempty"`
	StabilityScore float64   `json:"stability_score"`
	IsStable       bool      `json:"is_stable"` // Fixed at creation
	BackupRef      *Snapshot `json:"backup_ref,omitempty"`
	RollbackCount  int       `json:"rollback_count"`
}

// HasBackup reports whether the version owns a usable snapshot
func (v *Version) HasBackup() bool {
	return v.BackupRef.Usable()
}

// StableEntry is one row of the stable-version index
type StableEntry struct {
	VersionID      string    `json:"version_id"`
	StabilityScore float64   `json:"stability_score"`
	CreatedAt      time.Time `json:"created_at"`
	SnapshotRef    string    `json:"snapshot_ref,omitempty"`
}

// RollbackAttempt records one rollback, successful or not
type RollbackAttempt struct {
	Target   string    `json:"target"`
	Reason   string    `json:"reason,omitempty"`
	OK       bool      `json:"ok"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	Restored int       `json:"restored"`
	Failures []string  `json:"failures,omitempty"`
	At       time.Time `json:"at"`
}

// ProjectStatus is the status report shown to operators
type ProjectStatus struct {
	CurrentVersion        string    `json:"current_version"`
	TotalVersions         int       `json:"total_versions"`
	StableVersionsCount   int       `json:"stable_versions_count"`
	SnapshotCount         int       `json:"snapshot_count"`
	LastUpdate            time.Time `json:"last_update,omitempty"`
	AutoBackupEnabled     bool      `json:"auto_backup_enabled"`
	StabilityThreshold    float64   `json:"stability_threshold"`
	CurrentStabilityScore float64   `json:"current_stability_score,omitempty"`
	CurrentIsStable       bool      `json:"current_is_stable,omitempty"`
	CurrentRollbackCount  int       `json:"current_rollback_count,omitempty"`
	RollbackAttempts      int       `json:"rollback_attempts"`
}
