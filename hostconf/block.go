package hostconf

import (
	"fmt"
	"io"
	"strings"
)

// blkNo is the global block ordinal counter. The process is single
// threaded, so plain increments are fine.
var blkNo int

// Line is one payload line of a Block. Lines read from input carry only
// their raw text. Lines copied from another block keep a reference to their
// origin and the parsed directive, so printing can annotate where an
// inherited option came from.
type Line struct {
	Text string
	Dir  Directive
	Ref  *Block
}

// Block is a contiguous region of a host configuration: a header line
// introducing it and the payload lines that follow.
type Block struct {
	Header  string
	Hosts   []string
	Lines   []Line
	Ext     bool
	Comment string
	no      int
}

func newBlock(header string, hosts []string, ext bool, comment string) *Block {
	b := &Block{
		Header:  header,
		Hosts:   append([]string(nil), hosts...),
		Ext:     ext,
		Comment: comment,
		no:      blkNo,
	}
	blkNo++
	return b
}

// Push appends a raw payload line.
func (b *Block) Push(line string) {
	b.Lines = append(b.Lines, Line{Text: line})
}

// Empty reports whether the block has no payload.
func (b *Block) Empty() bool {
	return len(b.Lines) == 0
}

// Test reports whether the block's host patterns match the given host: at
// least one positive pattern must match and no negated ("!") pattern may.
func (b *Block) Test(host string) bool {
	hit := false
	for _, pattern := range b.Hosts {
		if strings.HasPrefix(pattern, "!") {
			if patternMatch(host, pattern[1:]) {
				return false
			}
		} else if patternMatch(host, pattern) {
			hit = true
		}
	}
	return hit
}

// trimmed yields the payload as parsed lines. Raw lines are tokenised and
// re-rendered, with this block recorded as their origin; lines that already
// carry an origin pass through unchanged. Lines with no option are dropped.
func (b *Block) trimmed() []Line {
	out := make([]Line, 0, len(b.Lines))
	for _, line := range b.Lines {
		if line.Ref != nil {
			out = append(out, line)
			continue
		}
		if d := ParseDirective(line.Text); !d.Empty() {
			out = append(out, Line{Text: d.String(), Dir: d, Ref: b})
		}
	}
	return out
}

// Print writes the block followed by a blank line. Payload lines of
// synthesised blocks are indented by two spaces, and the first line of each
// run of inherited lines is annotated with its origin header.
func (b *Block) Print(w io.Writer) {
	if comment := strings.Join(strings.Fields(b.Comment), " "); comment != "" {
		fmt.Fprintf(w, "%s  # %s\n", b.Header, comment)
	} else {
		fmt.Fprintln(w, b.Header)
	}

	var lastRef *Block
	for _, line := range b.Lines {
		text := line.Text
		if line.Ref != nil {
			if line.Ref != lastRef {
				lastRef = line.Ref
				if header := strings.TrimSpace(line.Ref.Header); header != "" {
					text += "  # " + header
				}
			}
		} else {
			lastRef = nil
		}
		if b.Ext {
			io.WriteString(w, "  ")
		}
		fmt.Fprintln(w, text)
	}
	fmt.Fprintln(w)
}

// String returns a compact debug form of the block.
func (b *Block) String() string {
	texts := make([]string, 0, len(b.Lines))
	for _, line := range b.Lines {
		texts = append(texts, strings.TrimSpace(line.Text))
	}
	flag := ""
	if b.Ext {
		flag = "-"
	}
	return fmt.Sprintf("Block(%s%d: %s | %s)",
		flag, b.no, strings.Join(b.Hosts, " "), strings.Join(texts, " "))
}
