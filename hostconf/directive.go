// Package hostconf models an SSH-style host configuration document as a
// sequence of directive blocks keyed by host patterns.
//
// The parser aims to handle most `Host` blocks. `Match` and `Include`
// headers are recognised as block boundaries but not evaluated, so options
// applied dynamically by them will not affect synthesised blocks. Parsing
// and evaluating them like `ssh -G` would be costly and have side effects;
// for complex configurations, consider the wrapper mode instead.
package hostconf

import (
	"strings"

	"github.com/google/shlex"
	"github.com/kballard/go-shellquote"
)

// Directive is a single configuration line tokenised into an option name
// plus its argument values. The option keeps its original casing; matching
// is done on the lowercased form. The zero Directive represents a line with
// no option, such as a blank or comment-only line.
type Directive struct {
	opt    string
	values []string
}

var parseCache = map[string]Directive{}

// ParseDirective tokenises one configuration line. Comments are stripped,
// quoting is shell-style and KEY=VALUE syntax is split into KEY followed by
// the tokens of VALUE. Results are memoised per line.
func ParseDirective(line string) Directive {
	if d, ok := parseCache[line]; ok {
		return d
	}
	d := parseDirective(line)
	parseCache[line] = d
	return d
}

func parseDirective(line string) Directive {
	parts, err := shlex.Split(cutComment(line))
	if err != nil || len(parts) == 0 {
		return Directive{}
	}

	opt := parts[0]
	values := parts[1:]
	if p := strings.IndexByte(opt, '='); p >= 0 {
		val := opt[p+1:]
		opt = opt[:p]
		if vparts, err := shlex.Split(val); err == nil {
			values = append(vparts, values...)
		}
	}
	return Directive{opt: opt, values: values}
}

// cutComment removes a trailing "#" comment, honouring quoting so a hash
// inside a quoted value survives.
func cutComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; ch {
		case '\\':
			if quote != '\'' {
				i++
			}
		case '\'', '"':
			switch quote {
			case 0:
				quote = ch
			case ch:
				quote = 0
			}
		case '#':
			if quote == 0 {
				return line[:i]
			}
		}
	}
	return line
}

// Opt returns the normalised (lowercase) option name.
func (d Directive) Opt() string {
	return strings.ToLower(d.opt)
}

// Values returns the argument values of the directive.
func (d Directive) Values() []string {
	return d.values
}

// Empty reports whether the line held no option at all.
func (d Directive) Empty() bool {
	return d.opt == ""
}

// String renders the directive back to a configuration line. Comments,
// surrounding whitespace and unnecessary quotes are gone; values that need
// quoting are re-quoted.
func (d Directive) String() string {
	return d.opt + " " + shellquote.Join(d.values...)
}

// key is the identity of a directive: the normalised option name plus the
// exact value tuple.
func (d Directive) key() string {
	return d.Opt() + "\x00" + strings.Join(d.values, "\x00")
}

// Equal reports whether two directives have the same option and values.
func (d Directive) Equal(other Directive) bool {
	return d.key() == other.key()
}
