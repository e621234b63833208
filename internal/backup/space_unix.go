//go:build unix

package backup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage reports capacity of the filesystem holding path
func DiskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
