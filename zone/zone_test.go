package zone_test

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhop/luna/hostconf"
	"github.com/moonhop/luna/zone"
)

// fakeProbe matches exactly one CIDR.
type fakeProbe struct {
	match string
}

func (f fakeProbe) CheckSubnet(n *net.IPNet) (string, bool) {
	if n.String() == f.match {
		return "10.0.0.1", true
	}
	return "", false
}

func (f fakeProbe) String() string {
	return "fake: " + f.match
}

func writeZone(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zone.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndRoute(t *testing.T) {
	path := writeZone(t, strings.Join([]string{
		"[home]",
		"host = h",
		"",
		"[vps]",
		"host = v",
		"timezone = 24",
		"",
		"[work]",
		"host = w",
		"timezone = 24",
		"",
		"[home]", // reopened sections merge in the ini model
	}, "\n"))

	// home has no constraints and is always a source; no clock runs at
	// UTC+24, so vps and work never are.
	c, err := zone.Load(path)
	require.NoError(t, err)
	require.Len(t, c.Zones(), 3)

	g := c.Route()
	path2, err := g.Trace("h")
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, path2)

	unreached, err := g.Trace("v")
	require.NoError(t, err)
	assert.Nil(t, unreached, "no arc reaches vps")
}

func TestArcGrammar(t *testing.T) {
	cases := []struct {
		name string
		arcs string
		want []string // expected path for target host t1
	}{
		{
			name: "via:to:cost",
			arcs: "arc = g1:target:30",
			want: []string{"g1", "t1"},
		},
		{
			name: "via:cost with existing host",
			arcs: "arc = t1:30",
			want: []string{"t1"},
		},
		{
			name: "via:to without cost",
			arcs: "arc = g1:target",
			want: []string{"g1", "t1"},
		},
		{
			name: "bare zone name",
			arcs: "arc = target",
			want: []string{"t1"},
		},
		{
			name: "bare existing host",
			arcs: "arc = t1",
			want: []string{"t1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// The target's unmatchable timezone keeps it from being a
			// source, so t1 is only reached through the arc from src.
			path := writeZone(t, strings.Join([]string{
				"[src]",
				"host = s1",
				tc.arcs,
				"",
				"[target]",
				"host = t1",
				"timezone = 24",
			}, "\n"))

			c, err := zone.Load(path)
			require.NoError(t, err)

			g := c.Route()
			got, err := g.Trace("t1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestArcErrors(t *testing.T) {
	cases := []struct {
		name    string
		arcs    string
		wantErr error
	}{
		{
			name:    "unknown zone in via:to:cost",
			arcs:    "arc = g1:nowhere:30",
			wantErr: zone.ErrUnknownZone,
		},
		{
			name:    "unknown zone in via:to",
			arcs:    "arc = g1:nowhere",
			wantErr: zone.ErrUnknownZone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeZone(t, strings.Join([]string{
				"[src]",
				"host = s1",
				tc.arcs,
			}, "\n"))

			_, err := zone.Load(path)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDuplicateAlias(t *testing.T) {
	path := writeZone(t, strings.Join([]string{
		"[one]",
		"host = a:shared",
		"",
		"[two]",
		"host = b:shared",
	}, "\n"))

	_, err := zone.Load(path)
	require.ErrorIs(t, err, zone.ErrDuplicateName)
	assert.Contains(t, err.Error(), "shared")
	assert.Contains(t, err.Error(), "two")
}

func TestSourcePredicateSubnet(t *testing.T) {
	path := writeZone(t, strings.Join([]string{
		"[lan]",
		"host = h",
		"subnet = 192.168.1.0/24 172.16.0.0/12",
	}, "\n"))

	c, err := zone.Load(path, zone.WithProber(fakeProbe{match: "192.168.1.0/24"}))
	require.NoError(t, err)
	g := c.Route()
	got, err := g.Trace("h")
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, got, "one matching subnet of the list is enough")

	c, err = zone.Load(path, zone.WithProber(fakeProbe{match: "10.9.0.0/16"}))
	require.NoError(t, err)
	g = c.Route()
	got, err = g.Trace("h")
	require.NoError(t, err)
	assert.Nil(t, got, "no subnet matches, the zone is not a source")
}

func TestSourcePredicateTimezone(t *testing.T) {
	_, offset := time.Now().Zone()
	hours := float64(offset) / 3600

	path := writeZone(t, strings.Join([]string{
		"[here]",
		"host = h",
		fmt.Sprintf("timezone = %g", hours),
		"",
		"[elsewhere]",
		"host = e",
		fmt.Sprintf("timezone = %g", hours+5),
	}, "\n"))

	c, err := zone.Load(path)
	require.NoError(t, err)
	g := c.Route()

	got, err := g.Trace("h")
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, got)

	got, err = g.Trace("e")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSourcePredicateAnd(t *testing.T) {
	_, offset := time.Now().Zone()
	hours := float64(offset) / 3600

	// Timezone matches but no subnet does: the conjunction fails.
	path := writeZone(t, strings.Join([]string{
		"[mixed]",
		"host = h",
		fmt.Sprintf("timezone = %g", hours),
		"subnet = 192.168.1.0/24",
	}, "\n"))

	c, err := zone.Load(path, zone.WithProber(fakeProbe{match: "10.0.0.0/8"}))
	require.NoError(t, err)
	g := c.Route()
	got, err := g.Trace("h")
	require.NoError(t, err)
	assert.Nil(t, got)

	c, err = zone.Load(path, zone.WithProber(fakeProbe{match: "192.168.1.0/24"}))
	require.NoError(t, err)
	g = c.Route()
	got, err = g.Trace("h")
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, got)
}

func TestState(t *testing.T) {
	_, offset := time.Now().Zone()

	path := writeZone(t, strings.Join([]string{
		"[lan]",
		"host = h",
		"subnet = 192.168.1.0/24",
		"timezone = 8",
	}, "\n"))

	c, err := zone.Load(path, zone.WithProber(fakeProbe{match: "192.168.1.0/24"}))
	require.NoError(t, err)

	want := fmt.Sprintf("tz:%d|if:fake: 192.168.1.0/24", offset)
	assert.Equal(t, want, c.State())
	assert.Equal(t, want, c.State(), "the state key is stable")

	// Without constraints there is nothing to observe.
	bare, err := zone.Load(writeZone(t, "[z]\nhost = h\n"))
	require.NoError(t, err)
	assert.Empty(t, bare.State())
}

func TestResolveDirectMode(t *testing.T) {
	path := writeZone(t, "[z]\nhost = h:h2\n")
	c, err := zone.Load(path)
	require.NoError(t, err)

	real, ok := c.ResolveDirectMode("d.h")
	assert.True(t, ok)
	assert.Equal(t, "h", real, "d. prefix bypasses routing for a managed host")

	_, ok = c.ResolveDirectMode("h")
	assert.False(t, ok, "managed hosts go through routing")

	_, ok = c.ResolveDirectMode("h2")
	assert.False(t, ok, "aliases are managed too")

	real, ok = c.ResolveDirectMode("stranger")
	assert.True(t, ok)
	assert.Equal(t, "stranger", real, "unmanaged hosts are direct as-is")

	real, ok = c.ResolveDirectMode("d.stranger")
	assert.True(t, ok)
	assert.Equal(t, "d.stranger", real, "the prefix only strips for managed hosts")
}

func TestSmartHostDiscovery(t *testing.T) {
	conf, err := hostconf.Parse(strings.NewReader(strings.Join([]string{
		"Host web1",
		"  Hostname 10.1.0.5",
		"Host web1-admin",
		"  Hostname 10.1.0.6",
		"Host db",
		"  Hostname 10.2.0.9",
		"Host named",
		"  Hostname db.internal",
		"",
	}, "\n")))
	require.NoError(t, err)

	path := writeZone(t, strings.Join([]string{
		"[lan]",
		"subnet = 10.1.0.0/24",
		"",
		"[db]",
		"host = db",
		"strict-host = true",
	}, "\n"))

	c, err := zone.Load(path, zone.WithHostConfig(conf), zone.WithProber(fakeProbe{}))
	require.NoError(t, err)

	g := c.Graph()
	assert.True(t, g.Has("web1"), "hostname inside the subnet joins the zone")
	assert.True(t, g.Has("web1-admin"), "prefix-sharing hosts become aliases")
	assert.True(t, g.Has("db"))
	assert.False(t, g.Has("named"), "non-IPv4 hostnames are ignored")

	lan := c.Zones()[0]
	require.Equal(t, "lan", lan.Name)
	assert.True(t, c.Contains(lan, "web1"))
	assert.True(t, c.Contains(lan, "web1-admin"), "the alias resolves to the canonical host")

	db := c.Zones()[1]
	assert.False(t, c.Contains(db, "web1"))
}

func TestSmartHostDiscoverySkipsClaimed(t *testing.T) {
	conf, err := hostconf.Parse(strings.NewReader(strings.Join([]string{
		"Host claimed",
		"  Hostname 10.1.0.7",
		"",
	}, "\n")))
	require.NoError(t, err)

	path := writeZone(t, strings.Join([]string{
		"[owner]",
		"host = claimed",
		"",
		"[lan]",
		"subnet = 10.1.0.0/24",
	}, "\n"))

	c, err := zone.Load(path, zone.WithHostConfig(conf), zone.WithProber(fakeProbe{}))
	require.NoError(t, err)

	owner := c.Zones()[0]
	lan := c.Zones()[1]
	assert.True(t, c.Contains(owner, "claimed"))
	assert.False(t, c.Contains(lan, "claimed"), "a declared host is never re-claimed")
}

func TestHookOutsideCwd(t *testing.T) {
	path := writeZone(t, strings.Join([]string{
		"[z]",
		"host = h",
		"hook = /etc/passwd",
	}, "\n"))

	_, err := zone.Load(path)
	assert.Error(t, err)
}
