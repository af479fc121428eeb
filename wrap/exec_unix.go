//go:build !windows

package wrap

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Exec replaces the current process with the ssh binary. It only returns
// on failure.
func Exec(bin string, args []string) (int, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return 0, fmt.Errorf("locate %q: %w", bin, err)
	}

	argv := append([]string{path}, args...)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return 0, fmt.Errorf("exec %q: %w", bin, err)
	}
	return 0, nil
}
