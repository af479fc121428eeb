package route

import (
	"strings"

	"github.com/moonhop/luna/hostconf"
)

// Inject materialises the computed routes into the host configuration. For
// every reachable named node the target is attached to its final hop, so
// connecting to the target behaves like connecting to the hop; when the
// route has intermediate jumps, a ProxyJump block for the last jump is
// added with the jump chain as its comment.
func (g *ZoneSet) Inject(conf *hostconf.Config) {
	for i := range g.nodes {
		target := g.nodes[i].name
		if target == "" {
			continue
		}
		way := g.find(i)
		if way == nil {
			continue
		}

		// The final hop does not need ProxyJump to itself, we connect to
		// it as if connecting to the target.
		finalHop := way[len(way)-1]
		conf.Attach(target, finalHop)

		if len(way) >= 2 {
			// TODO: respect the existing ProxyJump options for the target.
			jumps := way[:len(way)-1]
			conf.AddHost(
				[]string{target},
				[]hostconf.Line{{Text: "ProxyJump " + jumps[len(jumps)-1]}},
				"["+strings.Join(jumps, ", ")+"]",
			)
		}
	}
}
