// Package netprobe inspects the local network environment. Two
// interchangeable back-ends answer "does this subnet match where we are":
// one enumerates the local IPv4 interfaces, the other looks only at the
// default-route gateways, which is cheaper and more permissive.
package netprobe

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jackpal/gateway"

	"github.com/moonhop/luna/log"
)

// StrictEnv forces the interface back-end over the gateway back-end.
const StrictEnv = "LUNA_STRICT_SUBNET"

// Prober answers whether the local environment matches a subnet.
type Prober interface {
	// CheckSubnet returns the matching local address, if any.
	CheckSubnet(n *net.IPNet) (string, bool)

	// String summarises the probe's view of the environment. The result is
	// stable for a fixed environment and feeds the regeneration state key.
	String() string
}

// Default returns the process-wide probe: the gateway back-end when it is
// available and LUNA_STRICT_SUBNET is unset, the interface back-end
// otherwise. The probe is constructed once and the result treated as
// immutable for the process lifetime.
var Default = sync.OnceValue(func() Prober {
	log.Trace(">netprobe")
	defer log.Trace("netprobe")

	if os.Getenv(StrictEnv) == "" {
		if g, err := NewGateways(); err == nil {
			return g
		} else {
			log.Dbg("netprobe: gateway discovery failed, using interfaces:", err)
		}
	}

	p, err := NewInterfaces()
	if err != nil {
		log.Dbg("netprobe: interface enumeration failed:", err)
		return &Interfaces{}
	}
	return p
})

type iface struct {
	addr net.IP
	net  *net.IPNet
}

// Interfaces is the probe back-end built from the local non-loopback IPv4
// interface addresses.
type Interfaces struct {
	ints []iface
}

// NewInterfaces enumerates the local interfaces.
func NewInterfaces() (*Interfaces, error) {
	ifis, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	p := &Interfaces{}
	for _, ifi := range ifis {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			p.ints = append(p.ints, iface{
				addr: ip,
				net:  &net.IPNet{IP: ip.Mask(ipnet.Mask), Mask: ipnet.Mask},
			})
		}
	}
	return p, nil
}

// CheckOption broadens the interface subnet comparison.
type CheckOption func(*checkOptions)

type checkOptions struct {
	asSub   bool
	asSuper bool
}

// AsSubnet also accepts the queried network being contained in an
// interface's network.
func AsSubnet() CheckOption {
	return func(o *checkOptions) { o.asSub = true }
}

// AsSupernet also accepts an interface's network being contained in the
// queried network.
func AsSupernet() CheckOption {
	return func(o *checkOptions) { o.asSuper = true }
}

// Check looks for an interface matching the queried network. Without
// options the interface's network must equal it exactly.
func (p *Interfaces) Check(n *net.IPNet, opts ...CheckOption) (string, bool) {
	var options checkOptions
	for _, opt := range opts {
		opt(&options)
	}

	for _, intf := range p.ints {
		if netsEqual(intf.net, n) {
			return intf.addr.String(), true
		}
	}
	if options.asSub || options.asSuper {
		for _, intf := range p.ints {
			if (options.asSub && subnetOf(n, intf.net)) ||
				(options.asSuper && subnetOf(intf.net, n)) {
				return intf.addr.String(), true
			}
		}
	}
	return "", false
}

// CheckSubnet implements Prober with the exact comparison.
func (p *Interfaces) CheckSubnet(n *net.IPNet) (string, bool) {
	return p.Check(n)
}

func (p *Interfaces) String() string {
	cidrs := make([]string, 0, len(p.ints))
	for _, intf := range p.ints {
		ones, _ := intf.net.Mask.Size()
		cidrs = append(cidrs, fmt.Sprintf("%s/%d", intf.addr, ones))
	}
	sort.Strings(cidrs)
	return "interfaces: " + strings.Join(cidrs, ", ")
}

// netsEqual compares two networks by masked base address and mask.
func netsEqual(a, b *net.IPNet) bool {
	return a.IP.Mask(a.Mask).Equal(b.IP.Mask(b.Mask)) && bytes.Equal(a.Mask, b.Mask)
}

// subnetOf reports whether a is contained in b.
func subnetOf(a, b *net.IPNet) bool {
	aOnes, aBits := a.Mask.Size()
	bOnes, bBits := b.Mask.Size()
	return aBits == bBits && bOnes <= aOnes && b.Contains(a.IP.Mask(a.Mask))
}

// Gateways is the probe back-end built from the default-route gateway
// addresses. A gateway lying inside a queried subnet counts as a match.
type Gateways struct {
	gws []net.IP
}

// NewGateways discovers the default gateway. Only the single gateway that
// gateway.DiscoverGateway reports is recorded.
func NewGateways() (*Gateways, error) {
	ip, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}

	p := &Gateways{}
	if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
		p.gws = append(p.gws, ip4)
	}
	return p, nil
}

// CheckSubnet implements Prober.
func (p *Gateways) CheckSubnet(n *net.IPNet) (string, bool) {
	for _, gw := range p.gws {
		if n.Contains(gw) {
			return gw.String(), true
		}
	}
	return "", false
}

func (p *Gateways) String() string {
	addrs := make([]string, 0, len(p.gws))
	for _, gw := range p.gws {
		addrs = append(addrs, gw.String())
	}
	sort.Strings(addrs)
	return "gateways: " + strings.Join(addrs, ", ")
}
