package luna

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/kballard/go-shellquote"
)

// Known SOCKS-capable relay binaries on Windows installs.
var winRelays = []string{
	`C:\Program Files\Git\mingw64\bin\connect.exe`,
	`C:\Program Files (x86)\Nmap\ncat.exe`,
}

// ProxyCommandFormat returns a ProxyCommand directive template for the
// first SOCKS relay found on the system. The "{}" placeholder takes the
// proxy address; hooks typically feed the result into the substitution
// context. ok is false when no relay is available.
func ProxyCommandFormat() (format string, ok bool) {
	// TODO: check that nc is the openbsd variant.
	if _, err := exec.LookPath("nc"); err == nil {
		return "ProxyCommand nc -X 5 -x {} %h %p", true
	}

	if runtime.GOOS == "windows" {
		for _, relay := range winRelays {
			if _, err := os.Stat(relay); err != nil {
				continue
			}
			quoted := shellquote.Join(relay)
			if relay == winRelays[0] {
				return "ProxyCommand " + quoted + " -S {} %h %p", true
			}
			return "ProxyCommand " + quoted + " --proxy-type socks5 --proxy {} %h %p", true
		}
	}

	return "", false
}
