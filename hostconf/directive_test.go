package hostconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective(t *testing.T) {
	cases := []struct {
		name       string
		line       string
		wantOpt    string
		wantValues []string
	}{
		{
			name:       "simple",
			line:       "Hostname example.com",
			wantOpt:    "hostname",
			wantValues: []string{"example.com"},
		},
		{
			name:       "extra whitespace",
			line:       "  User   root  ",
			wantOpt:    "user",
			wantValues: []string{"root"},
		},
		{
			name:       "comment stripped",
			line:       "Port 2222 # override",
			wantOpt:    "port",
			wantValues: []string{"2222"},
		},
		{
			name:       "quoted value",
			line:       `IdentityFile "~/.ssh/my key"`,
			wantOpt:    "identityfile",
			wantValues: []string{"~/.ssh/my key"},
		},
		{
			name:       "hash inside quotes survives",
			line:       `ProxyCommand "nc # really" %h`,
			wantOpt:    "proxycommand",
			wantValues: []string{"nc # really", "%h"},
		},
		{
			name:       "key=value",
			line:       "User=root",
			wantOpt:    "user",
			wantValues: []string{"root"},
		},
		{
			name:       "key=value with more tokens",
			line:       "ProxyCommand=nc %h %p",
			wantOpt:    "proxycommand",
			wantValues: []string{"nc", "%h", "%p"},
		},
		{
			name:    "comment only",
			line:    "# nothing here",
			wantOpt: "",
		},
		{
			name:    "blank",
			line:    "   ",
			wantOpt: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ParseDirective(tc.line)
			assert.Equal(t, tc.wantOpt, d.Opt())
			assert.Equal(t, tc.wantValues, d.Values())
			assert.Equal(t, tc.wantOpt == "", d.Empty())
		})
	}
}

func TestDirectiveString(t *testing.T) {
	d := ParseDirective("  HostName  example.com   # comment")
	assert.Equal(t, "HostName example.com", d.String())

	d = ParseDirective(`User "John Doe"`)
	require.Equal(t, []string{"John Doe"}, d.Values())
	assert.Equal(t, d, ParseDirective(d.String()), "string form parses back to the same directive")
}

func TestDirectiveEqual(t *testing.T) {
	assert.True(t, ParseDirective("User root").Equal(ParseDirective("user   root # hi")))
	assert.False(t, ParseDirective("User root").Equal(ParseDirective("User admin")))
	assert.False(t, ParseDirective("User root").Equal(ParseDirective("Port root")))
}
