package commands

import (
	"io/fs"
	"testing"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdir(t *testing.T) {
	cases := goldenTestSuite{
		"missing-operand": {Args: []string{"mkdir"}},
		"verbose":         {Args: []string{"mkdir", "-v", "a", "b"}},
		"exists":          {Args: []string{"mkdir", "docs"}, Files: map[string]string{"docs/x": ""}},
		"no-parent":       {Args: []string{"mkdir", "a/b/c"}},
		"parents":         {Args: []string{"mkdir", "-pv", "a/b/c", "docs"}, Files: map[string]string{"docs/x": ""}},
		"parent-is-file":  {Args: []string{"mkdir", "-p", "f/sub"}, Files: map[string]string{"f": ""}},
		"bad-mode":        {Args: []string{"mkdir", "-m", "u+q", "d"}},
	}

	cases.Run(t, Mkdir)
}

func TestMkdir_mode(t *testing.T) {
	for mode, want := range map[string]fs.FileMode{"700": 0700, "go-w": 0755, "a=rx": 0555} {
		cmd := vostest.Command(Mkdir, "mkdir", "-m", mode, "-p", "x/y")

		res, err := cmd.Run()
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitCode, res.Stderr)

		fi, err := cmd.VFS.Stat(vostest.Home + "/x/y")
		require.NoError(t, err)
		assert.Equal(t, want, fi.Mode().Perm(), mode)
	}
}

func TestRm(t *testing.T) {
	cases := goldenTestSuite{
		"missing-operand": {Args: []string{"rm"}},
		"missing":         {Args: []string{"rm", "nope"}},
		"force":           {Args: []string{"rm", "-f", "nope"}},
		"directory":       {Args: []string{"rm", "docs"}, Files: map[string]string{"docs/x": ""}},
		"verbose":         {Args: []string{"rm", "-rv", "docs", "a.txt"}, Files: map[string]string{"docs/x": "", "a.txt": ""}},
	}

	cases.Run(t, Rm)
}

func TestRmdir(t *testing.T) {
	cases := goldenTestSuite{
		"missing-operand": {Args: []string{"rmdir"}},
		"not-empty":       {Args: []string{"rmdir", "docs"}, Files: map[string]string{"docs/x": ""}},
		"not-dir":         {Args: []string{"rmdir", "a.txt"}, Files: map[string]string{"a.txt": ""}},
	}

	cases.Run(t, Rmdir)
}

func TestRmdir_parents(t *testing.T) {
	cmd := vostest.Command(Rmdir, "rmdir", "-pv", "a/b/c")
	require.NoError(t, cmd.VFS.MkdirAll(vostest.Home+"/a/b/c", 0755))

	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, 0, cmd.ExitStatus)
	assert.Equal(t, "rmdir: removing directory, 'a/b/c'\nrmdir: removing directory, 'a/b'\nrmdir: removing directory, 'a'\n", string(out))

	exists, err := afero.DirExists(cmd.VFS, vostest.Home+"/a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRm_recursive(t *testing.T) {
	cmd := vostest.Command(Rm, "rm", "-r", "docs")
	require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/docs/deep/file.txt", "x"))

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	exists, err := afero.Exists(cmd.VFS, vostest.Home+"/docs/deep/file.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}
