// Package hook runs user-supplied hook executables declared in the zone
// definition. Hooks receive the event name as their first argument and a
// JSON payload on stdin.
package hook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/moonhop/luna/log"
)

// ErrOutsideCwd is returned for a hook path that escapes the working
// directory.
var ErrOutsideCwd = errors.New("hook outside working directory")

type executor interface {
	Run(path, name string, stdin []byte) error
}

type defaultExecutor struct{}

func (defaultExecutor) Run(path, name string, stdin []byte) error {
	cmd := exec.Command(path, name)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run hook %q: %w", path, err)
	}
	return nil
}

// Runner accumulates hook executables and dispatches events to them.
type Runner struct {
	hooks []string
	exec  executor
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{exec: defaultExecutor{}}
}

// Add registers a hook executable. The path must resolve inside the
// current working directory.
func (r *Runner) Add(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	abs := filepath.Clean(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, abs)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(cwd, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrOutsideCwd, path)
	}

	r.hooks = append(r.hooks, abs)
	return nil
}

// Run dispatches an event to every registered hook. Failures are logged
// and do not stop the remaining hooks.
func (r *Runner) Run(name string, payload any) {
	if len(r.hooks) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Dbg("hook: encode payload:", err)
		return
	}

	for _, h := range r.hooks {
		if err := r.exec.Run(h, name, data); err != nil {
			log.Dbg("hook:", err)
		}
	}
}
