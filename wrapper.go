package luna

import (
	"fmt"
	"os"

	"github.com/moonhop/luna/log"
	"github.com/moonhop/luna/wrap"
	"github.com/moonhop/luna/zone"
)

// WrapOptions carries the wrapper-mode parameters.
type WrapOptions struct {
	// ZoneFile is the zone definition.
	ZoneFile string
	// SSHBin is the downstream ssh binary to run.
	SSHBin string
	// PrintOnly prints the rewritten command line instead of executing.
	PrintOnly bool
	// Args is the caller's argv for the ssh binary.
	Args []string
}

// Wrap runs the wrapper mode: the destination argument is rewritten to the
// routed final hop with a -J jump list and the ssh binary is executed (or
// the command printed). A rewrite failure falls through to the original
// arguments, so the wrapper never blocks a connection it cannot improve.
// The returned code is the downstream exit status.
func Wrap(opts WrapOptions) (int, error) {
	args, err := rewriteArgs(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "luna:", err)
		args = opts.Args
	}

	if opts.PrintOnly {
		fmt.Println(wrap.CommandLine(opts.SSHBin, args))
		return 0, nil
	}
	return wrap.Exec(opts.SSHBin, args)
}

func rewriteArgs(opts WrapOptions) ([]string, error) {
	idx, err := wrap.FindDest(opts.Args)
	if err != nil {
		return nil, err
	}
	user, host := wrap.SplitUser(opts.Args[idx])

	zones, err := zone.Load(opts.ZoneFile)
	if err != nil {
		return nil, err
	}

	zones.RunHooks("resolve", map[string]any{"host": host})

	dest, jumps := resolve(zones, host)
	return wrap.Rewrite(opts.Args, idx, user, dest, jumps), nil
}

// resolve maps the requested host to its final hop and jump list, falling
// back to the host itself when it is unmanaged or unreachable.
func resolve(zones *zone.Config, host string) (dest, jumps string) {
	if real, ok := zones.ResolveDirectMode(host); ok {
		log.Must("Direct for", real)
		return real, ""
	}

	g := zones.Route()
	dbgZones(zones, host)

	if finalHop, jumps, ok := g.Resolve(host); ok {
		return finalHop, jumps
	}

	log.Must("No route to host", host)
	return host, ""
}
