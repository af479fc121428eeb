package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	luna "github.com/moonhop/luna"
)

var opts struct {
	input     string
	zone      string
	output    string
	header    string
	force     int
	sshBin    string
	printOnly bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "luna [flags] [host | ssh-args...]",
		Short: "Pre-process an SSH host configuration with multi-hop routing",
		Long: `luna computes the cheapest multi-hop path from the current network
location to each managed host. In generator mode it rewrites the host
configuration document with jump-host directives; in wrapper mode (-x/-p)
it rewrites the ssh invocation in place.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.input, "input-file", "i", "config", "host configuration input")
	flags.StringVarP(&opts.zone, "zone-file", "z", "zone.ini", "zone definition")
	flags.StringVarP(&opts.output, "output-file", "o", "", "rewritten output ('-' or empty for stdout)")
	flags.StringVarP(&opts.header, "header", "H", "", "decorative header and separator line")
	flags.CountVarP(&opts.force, "force", "f", "force regeneration (repeat to bypass the lock wait)")
	flags.StringVarP(&opts.sshBin, "exec", "x", "", "wrapper mode: run this ssh binary with rewritten argv")
	flags.BoolVarP(&opts.printOnly, "print", "p", false, "wrapper mode: print the rewritten command instead of executing")

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	for _, p := range []*string{&opts.input, &opts.zone, &opts.output, &opts.sshBin} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}

	if opts.sshBin != "" || opts.printOnly {
		bin := opts.sshBin
		if bin == "" {
			bin = "ssh"
		}
		code, err := luna.Wrap(luna.WrapOptions{
			ZoneFile:  opts.zone,
			SSHBin:    bin,
			PrintOnly: opts.printOnly,
			Args:      args,
		})
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	}

	host := ""
	if len(args) > 0 {
		host = args[0]
	}
	return luna.Generate(luna.Options{
		InputFile:  opts.input,
		ZoneFile:   opts.zone,
		OutputFile: opts.output,
		Header:     opts.header,
		Force:      opts.force,
		Host:       host,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "luna:", err)
		os.Exit(1)
	}
}
