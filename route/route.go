// Package route implements the zone routing graph: a directed graph over
// zone roots, canonical hosts and proxy hop-names, solved by multi-source
// Dijkstra. Reconstructed paths contain only user-visible hop names; zone
// roots and alias steps are elided.
package route

import (
	"container/heap"
	"errors"
	"fmt"
)

// Inf is the unreachable distance sentinel.
const Inf = 0x3f3f3f3f

// DefaultCost is the arc cost used when a specifier does not name one.
const DefaultCost = 20

// hostCost is the cost from a zone root to each of its hosts.
const hostCost = 10

var (
	// ErrUnknownHost is returned when a queried name is not in the graph.
	ErrUnknownHost = errors.New("unknown host")

	// ErrUnknownVia is returned for an arc whose via name resolves to
	// nothing and that has no target zone to anchor it.
	ErrUnknownVia = errors.New("unknown via without target zone")
)

// arc is a directed edge. Alias arcs contribute cost but no hop name to
// reconstructed paths.
type arc struct {
	to    int
	cost  int
	alias bool
}

// node is a graph vertex stored in the ZoneSet arena. Nodes reference each
// other by index, including the Dijkstra predecessor.
type node struct {
	name   string
	zone   *Zone
	adj    []arc
	dist   int
	prev   int // predecessor node index, -1 when unset
	via    arc // the arc taken from prev
	vis    bool
	traced bool

	path   []string
	pathOK bool
}

// Zone is a zone root plus the canonical host nodes it owns.
type Zone struct {
	g     *ZoneSet
	root  int
	hosts []int
}

// Dist returns the zone root's settled distance.
func (z *Zone) Dist() int {
	return z.g.nodes[z.root].dist
}

// Path returns the hop names leading into the zone, nil when unreachable.
func (z *Zone) Path() []string {
	return z.g.find(z.root)
}

// Traced reports whether the zone root lies on a traced path.
func (z *Zone) Traced() bool {
	return z.g.nodes[z.root].traced
}

// ZoneSet owns the graph. Nodes live in an arena slice and are addressed by
// index so the cyclic prev/adj references need no pointers.
type ZoneSet struct {
	nodes     []node
	byName    map[string]int
	canonical map[string]int
	q         pq
}

// NewZoneSet returns an empty graph.
func NewZoneSet() *ZoneSet {
	return &ZoneSet{
		byName:    map[string]int{},
		canonical: map[string]int{},
	}
}

func (g *ZoneSet) addNode(name string, zone *Zone) int {
	u := len(g.nodes)
	g.nodes = append(g.nodes, node{name: name, zone: zone, dist: Inf, prev: -1})
	if name != "" {
		g.byName[name] = u
	}
	return u
}

func (g *ZoneSet) addArc(from, to, cost int, alias bool) {
	g.nodes[from].adj = append(g.nodes[from].adj, arc{to: to, cost: cost, alias: alias})
}

// Add creates a zone from host groups. The first name of each group becomes
// a canonical host node; the extra names are recorded as alias shortcuts to
// it. Alias nodes are only materialised when an arc references them, since
// an alias is a shortcut from another zone and may be inaccessible even
// from its own.
func (g *ZoneSet) Add(hostGroups [][]string) *Zone {
	zone := &Zone{g: g}
	zone.root = g.addNode("", nil)

	for _, aliases := range hostGroups {
		canonical := g.addNode(aliases[0], zone)
		zone.hosts = append(zone.hosts, canonical)
		for _, alias := range aliases[1:] {
			g.canonical[alias] = canonical
		}
	}

	// Zone roots are invisible on the paths.
	for _, u := range zone.hosts {
		g.addArc(zone.root, u, hostCost, false)
		g.addArc(u, zone.root, 0, true)
	}

	return zone
}

// SetSrc marks the zone as a Dijkstra source. Any number of zones may be
// sources.
func (g *ZoneSet) SetSrc(zone *Zone) {
	if g.nodes[zone.root].dist != 0 {
		g.nodes[zone.root].dist = 0
		heap.Push(&g.q, pqItem{dist: 0, u: zone.root})
	}
}

// Arc adds an edge from a zone, resolved by the via name:
//   - empty via: direct arc to the target zone's root;
//   - via names an existing node: arc to that node;
//   - via is a known alias: a proxy node is created with a free alias arc
//     to the canonical host;
//   - otherwise via is an arbitrary hop name and needs a target zone to
//     anchor a proxy node to.
func (g *ZoneSet) Arc(from, to *Zone, via string, cost int) error {
	if via == "" {
		g.addArc(from.root, to.root, cost, false)
		return nil
	}

	u, ok := g.byName[via]
	if !ok {
		if host, ok := g.canonical[via]; ok {
			u = g.addNode(via, g.nodes[host].zone)
			g.addArc(u, host, 0, true)
		} else {
			if to == nil {
				return fmt.Errorf("%w: %q", ErrUnknownVia, via)
			}
			u = g.addNode(via, nil)
			g.addArc(u, to.root, 0, false)
		}
	}
	g.addArc(from.root, u, cost, false)
	return nil
}

// Route runs Dijkstra from the current sources until the queue drains.
func (g *ZoneSet) Route() {
	for g.q.Len() > 0 {
		u := heap.Pop(&g.q).(pqItem).u
		if g.nodes[u].vis {
			continue
		}
		g.nodes[u].vis = true
		for _, e := range g.nodes[u].adj {
			t := g.nodes[u].dist + e.cost
			if g.nodes[e.to].dist > t {
				g.nodes[e.to].dist = t
				g.nodes[e.to].prev = u
				g.nodes[e.to].via = e
				heap.Push(&g.q, pqItem{dist: t, u: e.to})
			}
		}
	}
}

// find reconstructs the cached path for a node, or nil when unreachable.
// A node contributes its own name only when it is not a zone root and the
// arc from its predecessor is not an alias arc.
func (g *ZoneSet) find(u int) []string {
	n := &g.nodes[u]
	if n.dist >= Inf {
		return nil
	}
	if n.pathOK {
		return n.path
	}

	var path []string
	if n.prev < 0 {
		if n.name != "" {
			path = []string{n.name}
		} else {
			path = []string{}
		}
	} else {
		r := g.find(n.prev)
		if n.name != "" && !n.via.alias {
			path = make([]string, len(r), len(r)+1)
			copy(path, r)
			path = append(path, n.name)
		} else {
			path = r
		}
	}

	n.path = path
	n.pathOK = true
	return path
}

// Trace returns the path to the named node and marks every node on it, so
// a pretty-printer can highlight the chain. A nil path with nil error means
// the node is unreachable.
func (g *ZoneSet) Trace(name string) ([]string, error) {
	u, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHost, name)
	}

	path := g.find(u)
	if path == nil {
		return nil, nil
	}

	g.nodes[u].traced = true
	for p := g.nodes[u].prev; p >= 0; p = g.nodes[p].prev {
		g.nodes[p].traced = true
	}
	return path, nil
}

// Resolve maps `ssh name` to `ssh finalHop -J jumps`. The final hop may be
// an alias of name when name is a canonical host. Only used in wrapper
// mode, where the connected destination can be modified.
func (g *ZoneSet) Resolve(name string) (finalHop, jumps string, ok bool) {
	u, found := g.byName[name]
	if !found {
		return "", "", false
	}
	way := g.find(u)
	if way == nil {
		return "", "", false
	}
	return way[len(way)-1], joinHops(way[:len(way)-1]), true
}

func joinHops(hops []string) string {
	out := ""
	for i, h := range hops {
		if i > 0 {
			out += ","
		}
		out += h
	}
	return out
}

// Contains reports whether name (normalised through the alias map) is a
// canonical host of zone.
func (g *ZoneSet) Contains(zone *Zone, name string) bool {
	if c, ok := g.canonical[name]; ok {
		name = g.nodes[c].name
	}
	u, ok := g.byName[name]
	if !ok {
		return false
	}
	return g.nodes[u].zone == zone
}

// Has reports whether name is a node or a registered alias.
func (g *ZoneSet) Has(name string) bool {
	if _, ok := g.byName[name]; ok {
		return true
	}
	_, ok := g.canonical[name]
	return ok
}

// Names yields every known name: named nodes first, then aliases that were
// never materialised.
func (g *ZoneSet) Names() []string {
	var names []string
	for i := range g.nodes {
		if g.nodes[i].name != "" {
			names = append(names, g.nodes[i].name)
		}
	}
	for alias := range g.canonical {
		if _, ok := g.byName[alias]; !ok {
			names = append(names, alias)
		}
	}
	return names
}

// Hosts yields the names of nodes that are not alias shortcuts, i.e. the
// canonical hosts and the proxy hops.
func (g *ZoneSet) Hosts() []string {
	var hosts []string
	for i := range g.nodes {
		name := g.nodes[i].name
		if name == "" {
			continue
		}
		if _, ok := g.canonical[name]; ok {
			continue
		}
		hosts = append(hosts, name)
	}
	return hosts
}
