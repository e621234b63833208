//go:build unix

package monitor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ReexecSelf replaces the current process image with a fresh copy of the
// same executable and arguments. It only returns on failure.
func ReexecSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("failed to re-exec %s: %w", exe, err)
	}
	return nil
}
