// Package luna wires the host-configuration index, the zone routing graph
// and the local-environment probe into the two output drivers: a generator
// that rewrites the host configuration document with jump-host directives,
// and a wrapper that rewrites an ssh invocation in place.
package luna

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/moonhop/luna/env"
	"github.com/moonhop/luna/hostconf"
	"github.com/moonhop/luna/log"
	"github.com/moonhop/luna/zone"
)

// Options carries the generator-mode parameters.
type Options struct {
	// InputFile is the host configuration to read.
	InputFile string
	// ZoneFile is the zone definition.
	ZoneFile string
	// OutputFile receives the rewritten document; empty or "-" means
	// stdout.
	OutputFile string
	// Header is a decorative line printed around the output and used as
	// the block separator.
	Header string
	// Force bypasses the freshness and state checks once, and the
	// wait-for-lock preview when repeated.
	Force int
	// Host is the optional host of interest for diagnostics and direct
	// mode.
	Host string
}

// ctx is the process substitution context. Values land here before the
// generator runs, and {{KEY}} tokens in the host configuration resolve
// against it.
var ctx = env.New(nil)

// Context returns the process substitution context.
func Context() *env.Environment {
	return ctx
}

func doSub(key string) string {
	if v, ok := ctx.Get(key); ok {
		key = v
	}
	return strings.TrimSpace(key)
}

// run holds the documents of one generator invocation.
type run struct {
	opts  Options
	conf  *hostconf.Config
	zones *zone.Config
}

func load(opts Options) (*run, error) {
	f, err := os.Open(opts.InputFile)
	if err != nil {
		return nil, fmt.Errorf("open host configuration: %w", err)
	}
	defer f.Close()

	conf, err := hostconf.Parse(f)
	if err != nil {
		return nil, err
	}

	zones, err := zone.Load(opts.ZoneFile, zone.WithHostConfig(conf))
	if err != nil {
		return nil, err
	}

	log.RegisterHighlights("name", conf.Hosts())
	var names []string
	for _, z := range zones.Zones() {
		names = append(names, z.Name)
	}
	log.RegisterHighlights("zone", names)
	if opts.Host != "" {
		log.RegisterHighlights("host", []string{opts.Host})
	}

	return &run{opts: opts, conf: conf, zones: zones}, nil
}

func (r *run) substitute() {
	if ctx.Empty() {
		return
	}
	res := r.conf.Sub(doSub)

	keys := make([]string, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := res[k]; v != "" {
			log.Dbg(k + "\t| " + v)
		}
	}
}

func dbgZones(zones *zone.Config, host string) {
	for _, z := range zones.Zones() {
		way := z.Path()
		if way == nil {
			continue
		}
		line := fmt.Sprintf("[%s] -> %s (%d)", strings.Join(way, ", "), z.Name, z.Dist())
		if host != "" && zones.Contains(z, host) {
			log.Must(line)
		} else {
			log.Dbg(line)
		}
	}
}

func dbgQuery(conf *hostconf.Config, host string) {
	lines := conf.Query(host)
	for i := 0; i < len(lines); {
		blk := lines[i].Ref
		var texts []string
		for ; i < len(lines) && lines[i].Ref == blk; i++ {
			texts = append(texts, lines[i].Text)
		}
		hosts := "<auto>"
		if len(blk.Hosts) > 0 {
			hosts = strings.Join(blk.Hosts, ", ")
		}
		log.Dbg(hosts + ": " + strings.Join(texts, ", "))
	}
}
