// Package log provides luna's diagnostic output. Lines written through Dbg
// and Must go to stderr and are also retained in a buffer, so that generator
// mode can replay them as comments into a non-terminal output file.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Sink receives formatted diagnostic lines. A proper sink, such as a test
// recorder, can be assigned with SetSink.
type Sink interface {
	// Line handles one diagnostic line. Lines flagged must are meant for
	// the user and should always be shown; the rest is dimmable noise.
	Line(s string, must bool)
}

var (
	sink Sink = &StdSink{}

	mu  sync.Mutex
	buf []string
)

// SetSink replaces the current sink. Passing nil restores the default
// stderr sink.
func SetSink(s Sink) {
	if s == nil {
		s = &StdSink{}
	}
	sink = s
}

// Dbg emits a diagnostic line.
func Dbg(args ...any) {
	emit(false, args...)
}

// Must emits a diagnostic line that is always shown to the user, even when
// stderr is not a terminal.
func Must(args ...any) {
	emit(true, args...)
}

func emit(must bool, args ...any) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	s := strings.Join(parts, " ")

	mu.Lock()
	buf = append(buf, s)
	mu.Unlock()

	sink.Line(s, must)
}

// Flush writes the buffered lines to w as "# " comments followed by a blank
// line, then clears the buffer. Nothing is written when no lines were
// buffered.
func Flush(w io.Writer) {
	mu.Lock()
	lines := buf
	buf = nil
	mu.Unlock()

	if len(lines) == 0 {
		return
	}
	for _, s := range lines {
		fmt.Fprintln(w, "#", s)
	}
	fmt.Fprintln(w)
}

// Reset drops any buffered lines.
func Reset() {
	mu.Lock()
	buf = nil
	mu.Unlock()
}

// StdSink prints diagnostics to stderr. On a terminal every line is shown,
// non-must lines dimmed; otherwise only must lines are printed.
type StdSink struct {
	initOnce sync.Once
	isTTY    bool
}

func (s *StdSink) init() {
	s.isTTY = term.IsTerminal(int(os.Stderr.Fd()))
}

// Line implements Sink.
func (s *StdSink) Line(line string, must bool) {
	s.initOnce.Do(s.init)

	line = "# " + line
	switch {
	case !s.isTTY:
		if must {
			fmt.Fprintln(os.Stderr, line)
		}
	case must:
		fmt.Fprintln(os.Stderr, Style(line))
	default:
		fmt.Fprintln(os.Stderr, dimStyle.Render(line))
	}
}
