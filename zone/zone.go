// Package zone loads the zone definition file, populates the routing graph
// and evaluates which zones the current process is inside.
package zone

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/ini.v1"

	"github.com/moonhop/luna/hook"
	"github.com/moonhop/luna/hostconf"
	"github.com/moonhop/luna/log"
	"github.com/moonhop/luna/netprobe"
	"github.com/moonhop/luna/route"
)

// Exported errors.
var (
	// ErrDuplicateName is returned when a host name or alias is declared
	// by more than one zone.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrUnknownZone is returned for an arc specifier naming a zone that
	// does not exist.
	ErrUnknownZone = errors.New("unknown zone")

	// ErrBadArc is returned for an arc specifier that does not parse.
	ErrBadArc = errors.New("bad arc specifier")
)

// currentOffset is the local UTC offset in seconds, sampled once.
var currentOffset = sync.OnceValue(func() int {
	_, offset := time.Now().Zone()
	return offset
})

func checkTimezone(hours float64) bool {
	return float64(currentOffset()) == hours*3600
}

// Zone is one section of the zone definition.
type Zone struct {
	Name string

	graph      *route.Zone
	hostGroups [][]string
	subnets    []*net.IPNet
	timezone   *float64
	strictHost bool
}

// Dist returns the routed distance of the zone root.
func (z *Zone) Dist() int {
	return z.graph.Dist()
}

// Path returns the hop names leading into the zone, nil when unreachable.
func (z *Zone) Path() []string {
	return z.graph.Path()
}

// Config is the loaded zone definition with its routing graph.
type Config struct {
	g     *route.ZoneSet
	zones map[string]*Zone
	order []*Zone
	hooks *hook.Runner
	probe func() netprobe.Prober

	probed netprobe.Prober
}

// Option adjusts loading.
type Option func(*loadOptions)

type loadOptions struct {
	conf  *hostconf.Config
	probe func() netprobe.Prober
}

// WithHostConfig enables smart host discovery against the given host
// configuration index.
func WithHostConfig(conf *hostconf.Config) Option {
	return func(o *loadOptions) {
		o.conf = conf
	}
}

// WithProber overrides the interface probe, mainly for tests.
func WithProber(p netprobe.Prober) Option {
	return func(o *loadOptions) {
		o.probe = func() netprobe.Prober { return p }
	}
}

// Load reads the zone definition file.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{probe: netprobe.Default}
	for _, opt := range opts {
		opt(&options)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load zone definition: %w", err)
	}

	c := &Config{
		g:     route.NewZoneSet(),
		zones: map[string]*Zone{},
		hooks: hook.NewRunner(),
		probe: options.probe,
	}

	vis := map[string]bool{}
	var smart []*Zone

	for _, sect := range file.Sections() {
		if sect.Name() == ini.DefaultSection {
			continue
		}
		z := &Zone{Name: sect.Name()}

		for _, spec := range strings.Fields(sect.Key("host").String()) {
			aliases := strings.Split(spec, ":")
			for _, alias := range aliases {
				if vis[alias] {
					return nil, fmt.Errorf("%w: %q in zone %s", ErrDuplicateName, alias, z.Name)
				}
				vis[alias] = true
			}
			z.hostGroups = append(z.hostGroups, aliases)
		}

		for _, cidr := range strings.Fields(sect.Key("subnet").String()) {
			_, n, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, fmt.Errorf("zone %s: subnet %q: %w", z.Name, cidr, err)
			}
			z.subnets = append(z.subnets, n)
		}

		if tz := sect.Key("timezone").String(); tz != "" {
			hours, err := strconv.ParseFloat(tz, 64)
			if err != nil {
				return nil, fmt.Errorf("zone %s: timezone %q: %w", z.Name, tz, err)
			}
			z.timezone = &hours
		}

		z.strictHost = sect.Key("strict-host").MustBool(false)

		c.zones[z.Name] = z
		c.order = append(c.order, z)
		if options.conf != nil && !z.strictHost {
			smart = append(smart, z)
		}
	}

	if options.conf != nil && len(smart) > 0 {
		discoverHosts(options.conf, smart, vis)
	}

	for _, sect := range file.Sections() {
		z, ok := c.zones[sect.Name()]
		if !ok {
			continue
		}
		z.graph = c.g.Add(z.hostGroups)

		if path := sect.Key("hook").String(); path != "" {
			if err := c.hooks.Add(path); err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Name, err)
			}
		}
	}

	for _, sect := range file.Sections() {
		z, ok := c.zones[sect.Name()]
		if !ok {
			continue
		}
		for _, spec := range strings.Fields(sect.Key("arc").String()) {
			to, via, cost, err := c.parseArc(spec)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Name, err)
			}
			var toZone *route.Zone
			if to != nil {
				toZone = to.graph
			}
			if err := c.g.Arc(z.graph, toZone, via, cost); err != nil {
				return nil, fmt.Errorf("zone %s: arc %q: %w", z.Name, spec, err)
			}
		}
	}

	return c, nil
}

// parseArc interprets an arc specifier. The colon-split forms are
// via:to:cost, via:cost, via:to and a single token that is either a zone
// name (direct arc) or a hop name.
func (c *Config) parseArc(spec string) (*Zone, string, int, error) {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 3:
		to, ok := c.zones[parts[1]]
		if !ok {
			return nil, "", 0, fmt.Errorf("%w: %q in arc %q", ErrUnknownZone, parts[1], spec)
		}
		cost, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, "", 0, fmt.Errorf("%w: cost in %q: %w", ErrBadArc, spec, err)
		}
		return to, parts[0], cost, nil

	case 2:
		if cost, err := strconv.Atoi(parts[1]); err == nil {
			return c.resolveTarget(parts[0]), c.resolveVia(parts[0]), cost, nil
		}
		to, ok := c.zones[parts[1]]
		if !ok {
			return nil, "", 0, fmt.Errorf("%w: %q in arc %q", ErrUnknownZone, parts[1], spec)
		}
		return to, parts[0], route.DefaultCost, nil

	case 1:
		return c.resolveTarget(spec), c.resolveVia(spec), route.DefaultCost, nil

	default:
		return nil, "", 0, fmt.Errorf("%w: %q", ErrBadArc, spec)
	}
}

// A specifier naming a zone is a direct link to it. Any other name has no
// target zone; the arc then goes to the node or alias of that name.
func (c *Config) resolveTarget(spec string) *Zone {
	return c.zones[spec]
}

func (c *Config) resolveVia(spec string) string {
	if _, ok := c.zones[spec]; ok {
		return ""
	}
	return spec
}

// discoverHosts finds SSH hosts in the smart zones' subnets. Hosts are
// visited in lexical order; a hostname parsing as IPv4 inside a zone's
// subnet becomes a canonical host of that zone, and the following hosts
// sharing its name as a prefix are consumed as aliases. A host already
// claimed by any zone is skipped.
func discoverHosts(conf *hostconf.Config, smart []*Zone, vis map[string]bool) {
	var allHosts []string
	idx := 0
	curr := ""
	started := false

	advance := func() bool {
		if idx >= len(allHosts) {
			curr = ""
			return false
		}
		curr = allHosts[idx]
		idx++
		return true
	}

	for _, hn := range conf.Hostnames() {
		if vis[hn.Host] {
			continue
		}
		ip := net.ParseIP(hn.Name)
		if ip == nil || ip.To4() == nil || !strings.Contains(hn.Name, ".") {
			continue
		}
		ip = ip.To4()

		matched := false
		for _, z := range smart {
			for _, n := range z.subnets {
				if !n.Contains(ip) {
					continue
				}

				// Found a canonical host, now find all its aliases with
				// the same prefix.
				if !started {
					started = true
					for _, h := range conf.Hosts() {
						if !vis[h] {
							allHosts = append(allHosts, h)
						}
					}
				}

				aliases := []string{hn.Host}
				for curr != hn.Host {
					if !advance() {
						break
					}
				}
				for advance() && strings.HasPrefix(curr, hn.Host) {
					vis[curr] = true
					aliases = append(aliases, curr)
				}

				z.hostGroups = append(z.hostGroups, aliases)
				matched = true
				break
			}
			if matched {
				break
			}
		}
	}
}

func (c *Config) prober() netprobe.Prober {
	if c.probed == nil {
		log.Trace(">prober")
		c.probed = c.probe()
		log.Trace("prober")
	}
	return c.probed
}

// inZone evaluates the source predicate: the timezone constraint and the
// subnet constraints must both hold (AND), subnets matching as an OR over
// the list. No constraint means the zone always hits.
func (c *Config) inZone(z *Zone) bool {
	if z.timezone != nil && !checkTimezone(*z.timezone) {
		return false
	}

	if len(z.subnets) > 0 {
		p := c.prober()
		for _, n := range z.subnets {
			if _, ok := p.CheckSubnet(n); ok {
				return true
			}
		}
		return false
	}

	return true
}

// Route marks every zone whose source predicate holds as a Dijkstra source
// and runs the routing. It returns the underlying graph.
func (c *Config) Route() *route.ZoneSet {
	for _, z := range c.order {
		if c.inZone(z) {
			c.g.SetSrc(z.graph)
		}
	}
	c.g.Route()
	return c.g
}

// Graph returns the routing graph.
func (c *Config) Graph() *route.ZoneSet {
	return c.g
}

// Zones returns the zones in declaration order.
func (c *Config) Zones() []*Zone {
	return c.order
}

// Contains reports whether name belongs to the zone.
func (c *Config) Contains(z *Zone, name string) bool {
	return c.g.Contains(z.graph, name)
}

// RunHooks dispatches an event to the hooks registered by the zones.
func (c *Config) RunHooks(name string, payload any) {
	c.hooks.Run(name, payload)
}

// State summarises the environmental factors the source predicates depend
// on. For fixed inputs and a fixed environment the result is stable, so it
// can gate regeneration.
func (c *Config) State() string {
	hasTz := false
	hasSubnet := false
	for _, z := range c.order {
		if z.timezone != nil {
			hasTz = true
		}
		if len(z.subnets) > 0 {
			hasSubnet = true
		}
	}

	var parts []string
	if hasTz {
		parts = append(parts, fmt.Sprintf("tz:%d", currentOffset()))
	}
	if hasSubnet {
		parts = append(parts, "if:"+c.prober().String())
	}
	return strings.Join(parts, "|")
}

// hasHost reports whether name is a managed host or alias (zone names do
// not count).
func (c *Config) hasHost(name string) bool {
	if _, ok := c.zones[name]; ok {
		return false
	}
	return c.g.Has(name)
}

// ResolveDirectMode decides whether host bypasses routing. A "d."-prefixed
// name whose suffix is managed resolves to the suffix; a name that is not
// managed at all is returned as is. Managed hosts return ok=false and go
// through routing.
func (c *Config) ResolveDirectMode(host string) (string, bool) {
	if c.hasHost(host) {
		return "", false
	}
	if real := strings.TrimPrefix(host, "d."); real != host && c.hasHost(real) {
		return real, true
	}
	// Direct for the unmanaged host.
	return host, true
}
