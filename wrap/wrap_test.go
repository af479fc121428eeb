package wrap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhop/luna/wrap"
)

func TestFindDest(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		want    int
		wantErr bool
	}{
		{
			name: "bare host",
			args: []string{"myhost"},
			want: 0,
		},
		{
			name: "no-value flags are skipped",
			args: []string{"-v", "-A", "myhost"},
			want: 2,
		},
		{
			name: "combined no-value flags",
			args: []string{"-vvv", "myhost"},
			want: 1,
		},
		{
			name: "value flag consumes the next element",
			args: []string{"-p", "2222", "myhost"},
			want: 2,
		},
		{
			name: "inline value does not consume",
			args: []string{"-oStrictHostKeyChecking=no", "myhost"},
			want: 1,
		},
		{
			name: "double dash terminates flags",
			args: []string{"-v", "--", "-lookslikeaflag"},
			want: 2,
		},
		{
			name: "command after host is ignored",
			args: []string{"-l", "root", "myhost", "uptime"},
			want: 2,
		},
		{
			name:    "flags only",
			args:    []string{"-v", "-p", "22"},
			wantErr: true,
		},
		{
			name:    "empty",
			args:    nil,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := wrap.FindDest(tc.args)
			if tc.wantErr {
				assert.ErrorIs(t, err, wrap.ErrNoDestination)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitUser(t *testing.T) {
	user, host := wrap.SplitUser("root@myhost")
	assert.Equal(t, "root@", user)
	assert.Equal(t, "myhost", host)

	user, host = wrap.SplitUser("myhost")
	assert.Empty(t, user)
	assert.Equal(t, "myhost", host)
}

func TestRewrite(t *testing.T) {
	args := []string{"-v", "myhost", "uptime"}

	got := wrap.Rewrite(args, 1, "root@", "gw", "j1,j2")
	assert.Equal(t, []string{"-J", "j1,j2", "-v", "root@gw", "uptime"}, got)
	assert.Equal(t, []string{"-v", "myhost", "uptime"}, args, "the input is untouched")

	got = wrap.Rewrite(args, 1, "", "gw", "")
	assert.Equal(t, []string{"-v", "gw", "uptime"}, got)
}

func TestCommandLine(t *testing.T) {
	got := wrap.CommandLine("/usr/bin/ssh", []string{"-J", "a,b", "root@gw", "echo hi"})
	assert.Equal(t, `/usr/bin/ssh -J a,b root@gw 'echo hi'`, got)
}
