//go:build windows

package wrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Exec runs the ssh binary as a child process and reports its exit code.
func Exec(bin string, args []string) (int, error) {
	cmd := exec.Command(bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return exit.ExitCode(), nil
		}
		return 0, fmt.Errorf("run %q: %w", bin, err)
	}
	return 0, nil
}
