// Package lockfile coordinates processes racing on the same output file
// with an advisory exclusive lock on a sidecar ".lock" file. The lock file
// is a zero-byte sentinel and is never unlinked, so it can be reused by the
// next run.
package lockfile

import (
	"fmt"

	"github.com/gofrs/flock"

	"github.com/moonhop/luna/log"
)

// WithLock runs fn while holding an exclusive lock on path. A non-blocking
// attempt is made first; when the lock is contended the call blocks until
// it is acquired and fn receives waited=true, so the caller can treat the
// output as freshly written by the previous holder.
func WithLock(path string, fn func(waited bool) error) error {
	l := flock.New(path)

	locked, err := l.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}

	waited := false
	if !locked {
		log.Must(path + ": waiting for lock")
		if err := l.Lock(); err != nil {
			return fmt.Errorf("wait for lock %s: %w", path, err)
		}
		waited = true
	}
	// Keep the lock file for the next use, so no unlink here.
	defer l.Unlock() //nolint:errcheck

	return fn(waited)
}
