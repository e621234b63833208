package backup

import "path/filepath"

// Policy is the one place that decides what a snapshot protects. The same
// value is used when copying a tree into a snapshot, when restoring a
// snapshot, and when clearing the tree before a restore, so the three can
// never disagree about what is off limits.
type Policy struct {
	// Deny holds entry names or glob patterns (matched against base names)
	// that are never copied, overwritten or deleted.
	Deny []string
	// RequiredFiles must all be present in a snapshot for it to verify.
	RequiredFiles []string
	// CriticalFiles are the only entries copied by a safety backup.
	CriticalFiles []string
	// MinFreeBytes is the free space required at the backup root.
	MinFreeBytes uint64
	// MinSizeBytes is the smallest total size a verified snapshot may have.
	MinSizeBytes int64
}

// DefaultPolicy mirrors the default configuration
func DefaultPolicy(deny []string) Policy {
	return Policy{
		Deny:          deny,
		RequiredFiles: []string{"README.md"},
		CriticalFiles: []string{"README.md"},
		MinFreeBytes:  1 << 30,
		MinSizeBytes:  1 << 20,
	}
}

// Denied reports whether an entry with the given base name is protected
func (p Policy) Denied(name string) bool {
	for _, pattern := range p.Deny {
		if pattern == name {
			return true
		}
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
