package luna

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/term"

	"github.com/moonhop/luna/hostconf"
	"github.com/moonhop/luna/lockfile"
	"github.com/moonhop/luna/log"
)

// freshFor is how recently the output may have been written for the run to
// assume another process just produced it.
const freshFor = 2 * time.Second

// Generate runs the generator mode: it renders the rewritten host
// configuration to stdout, or maintains the output file under its lock
// with freshness and state-key gating.
func Generate(opts Options) error {
	out := opts.OutputFile
	if out == "" || out == "-" {
		tty := term.IsTerminal(int(os.Stdout.Fd()))
		return generate(os.Stdout, opts, tty)
	}

	return lockfile.WithLock(out+".lock", func(waited bool) error {
		if waited && opts.Force < 2 {
			// The holding process has just finished writing; don't
			// clobber its output.
			return preview(out, opts)
		}

		// Check after acquiring the lock, to avoid terminating before the
		// holding process finishes writing.
		if st, err := os.Stat(out); err == nil && opts.Force == 0 {
			if dt := time.Since(st.ModTime()); dt <= freshFor {
				log.Dbg(fmt.Sprintf("%s: updated %.3f ms ago, skipping",
					out, float64(dt.Microseconds())/1000))
				return preview(out, opts)
			}
		}

		r, err := load(opts)
		if err != nil {
			return err
		}

		statePath := out + ".state"
		state := r.zones.State()
		if opts.Force == 0 && upToDate(out, state, statePath, opts) {
			log.Dbg(out + ": inputs and state unchanged, skipping")
			return preview(out, opts)
		}

		var buf bytes.Buffer
		if err := r.generate(&buf, false); err != nil {
			return err
		}

		// Only write the file at the last moment to avoid truncating it
		// on error.
		if err := writeFile(out, buf.Bytes()); err != nil {
			return err
		}
		return writeState(statePath, state)
	})
}

// upToDate reports whether the output is newer than every input and the
// state key has not changed since the last run.
func upToDate(out, state, statePath string, opts Options) bool {
	last, err := readState(statePath)
	if err != nil || last != state {
		return false
	}

	outSt, err := os.Stat(out)
	if err != nil {
		return false
	}
	for _, in := range []string{opts.InputFile, opts.ZoneFile} {
		st, err := os.Stat(in)
		if err != nil || !outSt.ModTime().After(st.ModTime()) {
			return false
		}
	}
	return true
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temporary output: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// generate renders the document. The load is done here when the caller
// has not already performed it.
func generate(w io.Writer, opts Options, tty bool) error {
	r, err := load(opts)
	if err != nil {
		return err
	}
	return r.generate(w, tty)
}

func (r *run) generate(w io.Writer, tty bool) error {
	opts := r.opts
	if opts.Header != "" {
		fmt.Fprintln(w, opts.Header)
	}

	r.substitute()

	host := opts.Host
	r.zones.RunHooks("generate", map[string]any{
		"host":   host,
		"input":  opts.InputFile,
		"output": opts.OutputFile,
	})

	if real, ok := r.zones.ResolveDirectMode(host); host != "" && ok {
		log.Must("Direct for", real)
		r.conf.Attach(host, real)
	} else {
		r.route(host)
	}

	if host != "" {
		dbgQuery(r.conf, host)
	}

	if !tty {
		log.Flush(w)
	}

	var printOpts []hostconf.PrintOption
	if opts.Header != "" {
		printOpts = append(printOpts, hostconf.WithSeparator(opts.Header))
	}
	r.conf.Print(w, printOpts...)

	if opts.Header != "" {
		fmt.Fprintln(w, opts.Header)
	}
	return nil
}

func (r *run) route(host string) {
	log.Trace(">route")
	g := r.zones.Route()
	log.Trace("route")

	dbgZones(r.zones, host)

	if host != "" {
		if path, err := g.Trace(host); err == nil && path == nil {
			log.Must("No route to host", host)
		}
	}

	g.Inject(r.conf)
}

// preview prints the effective directives for the requested host from an
// already-generated output file.
func preview(file string, opts Options) error {
	if opts.Host == "" {
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open output for preview: %w", err)
	}
	defer f.Close()

	conf, err := hostconf.Parse(f)
	if err != nil {
		return err
	}

	log.RegisterHighlights("name", conf.Hosts())
	log.RegisterHighlights("host", []string{opts.Host})

	dbgQuery(conf, opts.Host)
	return nil
}
