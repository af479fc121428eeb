package log

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var traceState = struct {
	sync.Once
	enabled bool
	start   time.Time
	last    time.Time
}{}

// Trace prints a timing mark to stderr when MOON_TRACE is set in the
// environment. Each mark shows the offset from process start and the delta
// from the previous mark.
func Trace(name string) {
	t := &traceState
	t.Do(func() {
		t.enabled = os.Getenv("MOON_TRACE") != ""
		t.start = time.Now()
		t.last = t.start
	})
	if !t.enabled {
		return
	}

	now := time.Now()
	fmt.Fprintf(os.Stderr, "trace %-20s +%8.3fms (%8.3fms)\n",
		name,
		float64(now.Sub(t.start).Microseconds())/1000,
		float64(now.Sub(t.last).Microseconds())/1000)
	t.last = now
}
