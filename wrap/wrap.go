// Package wrap intercepts an SSH command line: it locates the destination
// argument among the client's flags, rewrites it to the routed final hop
// and injects the jump list, then hands the result to the real ssh binary.
package wrap

import (
	"errors"
	"strings"

	"github.com/alessio/shellescape"
)

// noValueFlags are the ssh client flags that take no argument. Any other
// single-letter flag consumes the following argv element.
const noValueFlags = "46AaCfGgKkMNnqsTtVvXxYy"

// ErrNoDestination is returned when no positional argument is present.
var ErrNoDestination = errors.New("no destination in arguments")

// FindDest locates the first positional argument. A "--" terminates flag
// parsing; a two-character "-X" flag consumes the next element unless X is
// one of the no-value flags. Longer "-..." forms (combined flags or an
// inline value) are skipped without consuming anything.
func FindDest(args []string) (int, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			if i+1 < len(args) {
				return i + 1, nil
			}
			return 0, ErrNoDestination
		}

		if len(arg) > 1 && arg[0] == '-' {
			if len(arg) == 2 && !strings.ContainsRune(noValueFlags, rune(arg[1])) {
				// The flag's value is the next element.
				i++
			}
			continue
		}

		return i, nil
	}
	return 0, ErrNoDestination
}

// SplitUser splits an optional user@ prefix from a destination.
func SplitUser(dest string) (user, host string) {
	if p := strings.LastIndexByte(dest, '@'); p >= 0 {
		return dest[:p+1], dest[p+1:]
	}
	return "", dest
}

// Rewrite replaces the destination at index with user@finalHop and, when
// jumps is non-empty, prepends a -J option. The input slice is not
// modified.
func Rewrite(args []string, index int, user, finalHop, jumps string) []string {
	out := make([]string, 0, len(args)+2)
	if jumps != "" {
		out = append(out, "-J", jumps)
	}
	out = append(out, args...)
	p := index
	if jumps != "" {
		p += 2
	}
	out[p] = user + finalHop
	return out
}

// CommandLine renders a binary and its arguments as a shell command line.
func CommandLine(bin string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(bin))
	for _, a := range args {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}
