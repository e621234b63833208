package models

import (
	"fmt"
	"time"
)

// Severity classifies an error event
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity name
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("invalid severity: %s (must be: low, medium, high, critical)", s)
	}
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Well-known error types
const (
	ErrorTypeAIProcessing    = "ai_processing_error"
	ErrorTypeAISlow          = "ai_processing_slow"
	ErrorTypeSystemCrash     = "system_crash"
	ErrorTypeMemoryLeak      = "memory_leak"
	ErrorTypeFileCorruption  = "file_corruption"
	ErrorTypeHighCPU         = "high_cpu_usage"
	ErrorTypeLowDisk         = "low_disk_space"
	ErrorTypeHighMemory      = "high_memory_usage"
	ErrorTypeZombie          = "zombie_process"
	ErrorTypeZombieChild     = "zombie_child_process"
	ErrorTypeCriticalMissing = "critical_file_missing"
	ErrorTypeFileEmpty       = "file_empty"
)

// ErrorEvent is one recorded error. Immutable once recorded.
type ErrorEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
	PID       int               `json:"pid"`
}

// MonitorSummary is the read-only view of monitor state
type MonitorSummary struct {
	TotalErrors            int            `json:"total_errors"`
	CountsByType           map[string]int `json:"counts_by_type"`
	RecentErrorsInLastHour int            `json:"recent_errors_in_last_hour"`
	EmergencyMode          bool           `json:"emergency_mode"`
	MonitoringActive       bool           `json:"monitoring_active"`
	LastErrorAt            *time.Time     `json:"last_error_at,omitempty"`
	Threshold              int            `json:"threshold"`
	AutoRollback           bool           `json:"auto_rollback"`
}
