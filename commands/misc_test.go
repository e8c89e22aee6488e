package commands

import (
	"context"
	"testing"
	"time"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhich(t *testing.T) {
	cases := goldenTestSuite{
		"found":   {Args: []string{"which", "which"}},
		"missing": {Args: []string{"which", "nope"}},
		"all":     {Args: []string{"which", "-a", "which"}},
	}

	cases.Run(t, Which)
}

func TestPwd(t *testing.T) {
	cases := goldenTestSuite{
		"home": {Args: []string{"pwd"}},
	}

	cases.Run(t, Pwd)
}

func TestNoOp(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"true", 0},
		{"false", 1},
		{"sync", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := Resolve("/bin/" + tc.name)
			require.NotNil(t, proc)

			res, err := vostest.Command(proc, tc.name, "--ignored").Run()
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.ExitCode)
			assert.Empty(t, res.Stdout)
		})
	}
}

func TestTouch(t *testing.T) {
	cmd := vostest.Command(Touch, "touch", "new.txt", "existing.txt")
	require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/existing.txt", "keep"))

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	for _, name := range []string{"new.txt", "existing.txt"} {
		fi, err := cmd.VFS.Stat(vostest.Home + "/" + name)
		require.NoError(t, err)
		assert.True(t, fi.ModTime().Equal(vostest.FixedTime()), name)
	}

	data, err := cmd.Sandbox.ReadFile(vostest.Home + "/existing.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep", data)
}

func TestTouch_noCreate(t *testing.T) {
	cmd := vostest.Command(Touch, "touch", "-c", "absent.txt")

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	info, err := cmd.Sandbox.Stat(vostest.Home + "/absent.txt")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestTouch_explicitTimes(t *testing.T) {
	cases := map[string]struct {
		args []string
		want time.Time
	}{
		"date":      {[]string{"-d", "2021-03-04 05:06:07"}, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)},
		"rfc3339":   {[]string{"--date", "2020-01-02T03:04:05Z"}, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
		"stamp":     {[]string{"-t", "199912312359.30"}, time.Date(1999, 12, 31, 23, 59, 30, 0, time.UTC)},
		"stamp-yy":  {[]string{"-t", "0102030405"}, time.Date(2001, 2, 3, 4, 5, 0, 0, time.UTC)},
		"reference": {[]string{"-r", "ref.txt"}, time.Date(2010, 6, 7, 8, 9, 10, 0, time.UTC)},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			cmd := vostest.Command(Touch, "touch", append(tc.args, "out.txt")...)
			require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/ref.txt", ""))
			ref := time.Date(2010, 6, 7, 8, 9, 10, 0, time.UTC)
			require.NoError(t, cmd.VFS.Chtimes(vostest.Home+"/ref.txt", ref, ref))

			res, err := cmd.Run()
			require.NoError(t, err)
			assert.Equal(t, 0, res.ExitCode, res.Stderr)

			fi, err := cmd.VFS.Stat(vostest.Home + "/out.txt")
			require.NoError(t, err)
			assert.True(t, fi.ModTime().Equal(tc.want), "got %v", fi.ModTime())
		})
	}
}

func TestTouch_badDate(t *testing.T) {
	for _, args := range [][]string{{"-d", "yesterday"}, {"-t", "1399"}, {"-t", "13010000"}} {
		res, err := vostest.Command(Touch, "touch", append(args, "f")...).Run()
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode, args)
		assert.Contains(t, res.Stderr, "invalid date format", args)
	}
}

func TestTouch_accessOnlyKeepsModTime(t *testing.T) {
	cmd := vostest.Command(Touch, "touch", "-a", "f")
	require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/f", ""))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cmd.VFS.Chtimes(vostest.Home+"/f", old, old))

	_, err := cmd.Run()
	require.NoError(t, err)

	fi, err := cmd.VFS.Stat(vostest.Home + "/f")
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(old))
}

func TestParseSleepInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"0":    0,
		"1.5":  1500 * time.Millisecond,
		"2m":   2 * time.Minute,
		".5h":  30 * time.Minute,
		"1d":   24 * time.Hour,
		"10s":  10 * time.Second,
		"0.01": 10 * time.Millisecond,
	}
	for arg, want := range cases {
		got, err := parseSleepInterval(arg)
		require.NoError(t, err, arg)
		assert.Equal(t, want, got, arg)
	}

	for _, arg := range []string{"", "abc", "1x", "inf", "1e3", "s"} {
		_, err := parseSleepInterval(arg)
		assert.EqualError(t, err, "invalid time interval '"+arg+"'")
	}
}

func TestSleep(t *testing.T) {
	res, err := vostest.Command(Sleep, "sleep", "0", "0.01").Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	res, err = vostest.Command(Sleep, "sleep").Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "sleep: missing operand\n", res.Stderr)
}

func TestSleep_cancelled(t *testing.T) {
	cmd := vostest.Command(Sleep, "sleep", "1h")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd.Sandbox.Arm(ctx)

	start := time.Now()
	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Less(t, time.Since(start), time.Second)
}
