package hostconf

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

var subRe = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Config is an indexed collection of the blocks of one host configuration
// document. Blocks read from input keep their encounter order; blocks
// synthesised through Attach and AddHost are printed first so their options
// win under SSH's first-match rule.
type Config struct {
	hostMap   map[string][]*Block
	wildcards []*Block
	blks      []*Block
	extBlks   []*Block
	extCache  map[string]*Block
	lastOpts  map[string]struct{}
}

// Parse reads a host configuration document. A line whose first token is
// "host" or "match" (case-insensitive) opens a new block; other non-blank
// lines belong to the current block. Lines before any header land in an
// implicit leading block which, when non-empty, is relabelled to apply to
// every host.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{
		hostMap:  map[string][]*Block{},
		extCache: map[string]*Block{},
	}

	defaultBlk := newBlock("", []string{"*"}, false, "")
	blk := defaultBlk

	flush := func(next *Block) {
		c.pushBlk(blk, false)
		blk = next
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		d := ParseDirective(line)
		switch d.Opt() {
		case "host":
			flush(newBlock(line, d.Values(), false, ""))
		case "match":
			flush(newBlock(line, nil, false, ""))
		default:
			if strings.TrimSpace(line) != "" {
				blk.Push(line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read host configuration: %w", err)
	}
	c.pushBlk(blk, false)

	if !defaultBlk.Empty() {
		defaultBlk.Header = "Host *  # Default"
	}

	return c, nil
}

// pushBlk indexes a block: once into the wildcard list if any positive
// pattern has a wildcard, and into the exact-host map per plain pattern.
// Negated patterns only participate in Test.
func (c *Config) pushBlk(blk *Block, ext bool) {
	if ext {
		c.extBlks = append(c.extBlks, blk)
	} else {
		c.blks = append(c.blks, blk)
	}

	wild := false
	for _, host := range blk.Hosts {
		if strings.HasPrefix(host, "!") {
			continue
		}
		if strings.Contains(host, "*") {
			if !wild {
				c.wildcards = append(c.wildcards, blk)
				wild = true
			}
		} else {
			c.hostMap[host] = append(c.hostMap[host], blk)
		}
	}
}

// queryBlocks collects the blocks applying to host, synthesised blocks
// first and input order within each group.
func (c *Config) queryBlocks(host string) []*Block {
	seen := map[*Block]bool{}
	var blks []*Block
	for _, blk := range c.hostMap[host] {
		if !seen[blk] {
			seen[blk] = true
			blks = append(blks, blk)
		}
	}
	// We assume there is never `Host foo !f*o`.
	for _, blk := range c.wildcards {
		if !seen[blk] && blk.Test(host) {
			seen[blk] = true
			blks = append(blks, blk)
		}
	}

	sort.Slice(blks, func(i, j int) bool {
		if blks[i].Ext != blks[j].Ext {
			return blks[i].Ext
		}
		return blks[i].no < blks[j].no
	})
	return blks
}

// queryLines walks the matched blocks and keeps the first occurrence of
// every option. IdentityFile and CertificateFile accumulate instead:
// ssh_config(5) has multiple occurrences add to the list of identities
// tried, unlike other directives.
func (c *Config) queryLines(host string) []Line {
	opts := map[string]struct{}{}
	c.lastOpts = opts

	var out []Line
	for _, blk := range c.queryBlocks(host) {
		for _, line := range blk.trimmed() {
			opt := line.Dir.Opt()
			if opt == "identityfile" || opt == "certificatefile" {
				out = append(out, line)
			} else if _, ok := opts[opt]; !ok {
				opts[opt] = struct{}{}
				out = append(out, line)
			}
		}
	}
	return out
}

// Query returns the directives SSH would apply to host, reordered so lines
// from input blocks come first, in input order.
func (c *Config) Query(host string) []Line {
	lines := append([]Line(nil), c.queryLines(host)...)
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i].Ref, lines[j].Ref
		if a.Ext != b.Ext {
			return !a.Ext
		}
		return a.no < b.no
	})
	return lines
}

// Attach makes name an alias of host: a synthesised block for name receives
// the directives that apply to host and are not already present for name,
// plus a Hostname pointing at host unless one was inherited.
func (c *Config) Attach(name, host string) {
	if name == host {
		return
	}

	old := map[string]struct{}{}
	for _, line := range c.queryLines(name) {
		old[line.Dir.key()] = struct{}{}
	}

	var lines []Line
	for _, line := range c.queryLines(host) {
		if _, ok := old[line.Dir.key()]; !ok {
			lines = append(lines, line)
		}
	}
	if _, ok := c.lastOpts["hostname"]; !ok {
		lines = append(lines, Line{Text: "Hostname " + host})
	}

	c.AddHost([]string{name}, lines, "inherits from "+host)
}

// AddHost synthesises a block for the given hosts. Blocks are de-duplicated
// by payload: when an existing synthesised block carries the same lines, the
// hosts are merged into it and the comments joined. The hosts should not
// contain wildcards, for the cache semantics.
func (c *Config) AddHost(hosts []string, lines []Line, comment string) *Block {
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, line.Text)
	}
	key := strings.Join(keys, "\n")

	if blk, ok := c.extCache[key]; ok {
		if comment != "" {
			if blk.Comment != "" && blk.Comment != comment {
				blk.Comment += "; " + comment
			} else {
				blk.Comment = comment
			}
		}

		old := map[string]bool{}
		for _, h := range blk.Hosts {
			old[h] = true
		}
		var fresh []string
		for _, h := range hosts {
			if !old[h] {
				fresh = append(fresh, h)
			}
		}
		if len(fresh) > 0 {
			blk.Header += " " + strings.Join(fresh, " ")
			blk.Hosts = append(blk.Hosts, fresh...)
			for _, h := range fresh {
				c.hostMap[h] = append(c.hostMap[h], blk)
			}
		}
		return blk
	}

	blk := newBlock("Host "+strings.Join(hosts, " "), hosts, true, comment)
	blk.Lines = append(blk.Lines, lines...)
	c.pushBlk(blk, true)
	c.extCache[key] = blk
	return blk
}

// PrintOption adjusts Print output.
type PrintOption func(*printOptions)

type printOptions struct {
	separator *string
}

// WithSeparator prints the given line between the synthesised and the
// original blocks.
func WithSeparator(s string) PrintOption {
	return func(o *printOptions) {
		o.separator = &s
	}
}

// Print writes the document back out: synthesised blocks first, then the
// input blocks in their original order. The output is valid input for
// Parse.
func (c *Config) Print(w io.Writer, opts ...PrintOption) {
	var options printOptions
	for _, opt := range opts {
		opt(&options)
	}

	for _, blk := range c.extBlks {
		blk.Print(w)
	}
	if options.separator != nil {
		fmt.Fprintln(w, *options.separator)
	}
	for _, blk := range c.blks {
		blk.Print(w)
	}
}

// Sub replaces {{KEY}} tokens in the input blocks' lines using repl and
// appends the substituted keys as a trailing comment to each affected line.
// It returns a map of key to the replacement with any comment stripped.
func (c *Config) Sub(repl func(string) string) map[string]string {
	res := map[string]string{}

	for _, blk := range c.blks {
		for i, line := range blk.Lines {
			var keys []string
			text := subRe.ReplaceAllStringFunc(line.Text, func(m string) string {
				key := strings.TrimSpace(subRe.FindStringSubmatch(m)[1])
				keys = append(keys, key)
				val := repl(key)

				cleaned := val
				if p := strings.Index(cleaned, "#"); p >= 0 {
					cleaned = cleaned[:p]
				}
				res[key] = strings.TrimSpace(cleaned)
				return val
			})
			if len(keys) > 0 {
				blk.Lines[i] = Line{Text: text + " # " + strings.Join(keys, "; ")}
			}
		}
	}
	return res
}

// Hosts returns the exact (non-wildcard) host names known to the index, in
// lexical order.
func (c *Config) Hosts() []string {
	hosts := make([]string, 0, len(c.hostMap))
	for host := range c.hostMap {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// HostName pairs an exact host with the first argument of its first
// Hostname directive.
type HostName struct {
	Host string
	Name string
}

// Hostnames extracts (host, hostname) pairs, at most one per host, first
// hit wins.
func (c *Config) Hostnames() []HostName {
	var out []HostName
	for _, host := range c.Hosts() {
		found := false
		for _, blk := range c.hostMap[host] {
			for _, line := range blk.trimmed() {
				if line.Dir.Opt() == "hostname" && len(line.Dir.Values()) > 0 {
					out = append(out, HostName{Host: host, Name: line.Dir.Values()[0]})
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return out
}
