package luna

import (
	"fmt"
	"os"
	"strings"
)

// readState loads the state key written by the previous run. A missing
// file is normal and reads as no prior state.
func readState(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read state: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func writeState(path, state string) error {
	if err := os.WriteFile(path, []byte(state+"\n"), 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
