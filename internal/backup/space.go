package backup

// Usage is a filesystem capacity reading in bytes
type Usage struct {
	Total uint64
	Free  uint64
}

// UsedPercent returns the share of the filesystem in use
func (u Usage) UsedPercent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Total-u.Free) / float64(u.Total) * 100
}

// SpaceFunc returns the free bytes available at path
type SpaceFunc func(path string) (uint64, error)

// FreeSpace is the default SpaceFunc
func FreeSpace(path string) (uint64, error) {
	u, err := DiskUsage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}
