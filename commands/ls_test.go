package commands

import (
	"testing"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lsFiles = map[string]string{
	"notes.txt":       "hello",
	"archive.tar":     "",
	".hidden":         "",
	"docs/readme.md":  "# readme\n",
	"docs/guide.md":   "",
	"src/main.go":     "package main\n",
	"src/zzz_test.go": "",
}

func TestLs(t *testing.T) {
	cases := goldenTestSuite{
		"default":      {Args: []string{"ls"}, Files: lsFiles},
		"all":          {Args: []string{"ls", "-a", "docs"}, Files: lsFiles},
		"one-per-line": {Args: []string{"ls", "-1"}, Files: lsFiles},
		"many-dirs":    {Args: []string{"ls", "src", "notes.txt", "docs"}, Files: lsFiles},
		"missing":      {Args: []string{"ls", "nope"}},
		"color":        {Args: []string{"ls", "--color=always", "docs"}, Files: lsFiles},
	}

	cases.Run(t, Ls)
}

func TestLs_long(t *testing.T) {
	cmd := vostest.Command(Ls, "ls", "-l", "data")
	for name, contents := range map[string]string{
		"data/big.bin": string(make([]byte, 2048)),
		"data/small":   "x",
	} {
		path := vostest.Home + "/" + name
		require.NoError(t, writeFile(cmd.VFS, path, contents))
		require.NoError(t, cmd.VFS.Chtimes(path, vostest.FixedTime(), vostest.FixedTime()))
	}
	linker, ok := cmd.VFS.(afero.Linker)
	require.True(t, ok)
	require.NoError(t, linker.SymlinkIfPossible("small", vostest.Home+"/data/link"))

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	lines := []string{
		"total 2054",
		"-rw-r--r-- 1 user user 2048 Jan  2 03:04 big.bin",
	}
	for _, line := range lines {
		assert.Contains(t, res.Stdout, line+"\n")
	}
	assert.Contains(t, res.Stdout, "link -> small\n")
	assert.Contains(t, res.Stdout, "lrwxrwxrwx 1 user user    5 ")
}

func TestColumnize(t *testing.T) {
	entries := func(names ...string) (out []namedInfo) {
		for _, n := range names {
			out = append(out, namedInfo{name: n})
		}
		return
	}

	cases := []struct {
		name  string
		names []string
		width int
		want  []int
	}{
		{"empty", nil, 80, []int{0}},
		{"fits one row", []string{"a", "bb", "ccc"}, 80, []int{1, 2, 3}},
		{"wraps", []string{"aaaa", "bbbb", "cccc"}, 10, []int{4, 4}},
		{"too narrow", []string{"aaaa", "bbbb"}, 1, []int{4}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, columnize(entries(tc.names...), tc.width))
		})
	}
}
