package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChmodApplyMode(t *testing.T) {
	blank := fs.FileMode(0)
	file := fs.FileMode(0666)

	cases := []struct {
		orig     fs.FileMode
		mode     string
		wantMode fs.FileMode
		wantErr  error
	}{
		// Permissions
		{blank, "+r", ModeRead, nil},
		{blank, "+w", ModeWrite, nil},
		{blank, "+x", ModeExec, nil},
		{blank, "+rwx", fs.FileMode(0777), nil},

		// Special bits
		{blank, "+t", fs.ModeSticky, nil},
		{blank, "+s", fs.ModeSetuid | fs.ModeSetgid, nil},
		{blank, "u+s", fs.ModeSetuid, nil},
		{blank, "g+s", fs.ModeSetgid, nil},
		{blank, "u+t", blank, nil},
		{fs.ModeSetuid | 0755, "u=rwx", fs.FileMode(0755), nil},
		{blank, "4755", fs.ModeSetuid | fs.FileMode(0755), nil},
		{fs.ModeSetgid, "0644", fs.FileMode(0644), nil},

		// Capital X, only sets execute if a dir or already has an exec bit
		{blank, "+X", blank, nil},
		{fs.ModeDir, "+X", fs.ModeDir | ModeExec, nil},

		// Groups: a,u,g,o
		{blank, "a+r", ModeRead, nil},
		{blank, "a+w", ModeWrite, nil},
		{blank, "a+x", ModeExec, nil},
		{blank, "a+rwx", fs.FileMode(0777), nil},
		{blank, "u+r", ModeRead & ModeMaskUser, nil},
		{blank, "u+w", ModeWrite & ModeMaskUser, nil},
		{blank, "u+x", ModeExec & ModeMaskUser, nil},
		{blank, "u+rwx", fs.FileMode(0777) & ModeMaskUser, nil},
		{blank, "g+r", ModeRead & ModeMaskGroup, nil},
		{blank, "g+w", ModeWrite & ModeMaskGroup, nil},
		{blank, "g+x", ModeExec & ModeMaskGroup, nil},
		{blank, "g+rwx", fs.FileMode(0777) & ModeMaskGroup, nil},
		{blank, "o+r", ModeRead & ModeMaskOther, nil},
		{blank, "o+w", ModeWrite & ModeMaskOther, nil},
		{blank, "o+x", ModeExec & ModeMaskOther, nil},
		{blank, "o+rwx", fs.FileMode(0777) & ModeMaskOther, nil},

		// Actions:
		{ModeWrite | ModeRead, "-w", ModeRead, nil},
		{fs.FileMode(0777), "=r", ModeRead, nil},

		// Clause lists and copies
		{blank, "u+rw,go+r", fs.FileMode(0644), nil},
		{fs.FileMode(0700), "g=u", fs.FileMode(0770), nil},
		{fs.FileMode(0750), "o=g-x", fs.FileMode(0754), nil},
		{fs.FileMode(0644), "a+x,o-x", fs.FileMode(0754), nil},
		{fs.FileMode(0644), "u+x-w", fs.FileMode(0544), nil},

		// Octal permissions
		{blank, "644", fs.FileMode(0644), nil},

		// Don't wipe non-permission bits
		{fs.ModeDir | fs.ModeSticky, "+x", fs.ModeDir | fs.ModeSticky | ModeExec, nil},
		{fs.ModeDir | fs.ModeSticky, "-x", fs.ModeDir | fs.ModeSticky, nil},
		{fs.ModeDir | fs.ModeSticky, "=x", fs.ModeDir | fs.ModeSticky | ModeExec, nil},
		{fs.ModeDir | fs.ModeSticky, "644", fs.ModeDir | fs.ModeSticky | fs.FileMode(0644), nil},

		// Bad mode expressions
		{file, "o+z", file, errors.New("unknown symbol 'z'")},
		{file, "x", file, errors.New("no action provided")},
		{file, "u", file, errors.New("no action provided")},
		{file, "u+x,q", file, errors.New("unknown symbol 'q'")},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("chmod %q %q to %q %v", tc.mode, tc.orig, tc.wantMode, tc.wantErr), func(t *testing.T) {

			gotMode, gotErr := ChmodApplyMode(tc.mode, tc.orig)
			if tc.wantErr != nil || gotErr != nil {
				if tc.wantErr.Error() != gotErr.Error() {
					t.Errorf("wanted err %q got err %q", tc.wantErr, gotErr)
				}
			}

			if gotMode != tc.wantMode {
				t.Errorf("wanted mode %q got mode %q", tc.wantMode, gotMode)
			}
		})
	}
}

func TestChmod(t *testing.T) {
	cases := goldenTestSuite{
		"missing-operand": {Args: []string{"chmod", "+x"}},
		"missing":         {Args: []string{"chmod", "+x", "nope"}},
		"bad-mode":        {Args: []string{"chmod", "+q", "a.sh"}, Files: map[string]string{"a.sh": ""}},
		"quiet-missing":   {Args: []string{"chmod", "-f", "+x", "nope"}},
		"verbose":         {Args: []string{"chmod", "-v", "a+x", "a.sh", "b.sh"}, Files: map[string]string{"a.sh": "", "b.sh": ""}},
	}

	cases.Run(t, Chmod)
}

func TestChmod_makesExecutable(t *testing.T) {
	cmd := vostest.Command(Chmod, "chmod", "u+x", "run.sh")
	require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/run.sh", "#!/bin/sh\n"))

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	fi, err := cmd.VFS.Stat(vostest.Home + "/run.sh")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0744), fi.Mode().Perm())
}

func TestChmod_recursive(t *testing.T) {
	cases := map[string][]string{
		"mode after options": {"-R", "-c", "-x", "tree"},
		"mode after dashes":  {"-R", "-c", "--", "-x", "tree"},
		"long options":       {"--recursive", "--changes", "a-x", "tree"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := vostest.Command(Chmod, "chmod", args...)
			require.NoError(t, cmd.VFS.MkdirAll(vostest.Home+"/tree/sub", 0755))
			require.NoError(t, writeFile(cmd.VFS, vostest.Home+"/tree/sub/f", "data"))
			require.NoError(t, cmd.VFS.Chmod(vostest.Home+"/tree/sub/f", 0644))

			res, err := cmd.Run()
			require.NoError(t, err)
			assert.Equal(t, 0, res.ExitCode, res.Stderr)
			assert.Equal(t, strings.Join([]string{
				"mode of 'tree' changed from 0755 (rwxr-xr-x) to 0644 (rw-r--r--)",
				"mode of 'tree/sub' changed from 0755 (rwxr-xr-x) to 0644 (rw-r--r--)",
				"",
			}, "\n"), res.Stdout)
		})
	}
}
