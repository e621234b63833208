//go:build !unix

package monitor

import (
	"fmt"
	"os"
	"os/exec"
)

// ReexecSelf starts a fresh copy of the current executable with the same
// arguments and exits. It only returns on failure.
func ReexecSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to restart %s: %w", exe, err)
	}
	os.Exit(0)
	return nil
}
