//go:build !unix

package backup

import "errors"

// DiskUsage is not available on this platform
func DiskUsage(path string) (Usage, error) {
	return Usage{}, errors.New("disk usage not supported on this platform")
}
