package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ExampleBytesToHuman() {

	// < 1k is presented directly
	fmt.Println(BytesToHuman(512))

	// Multiples > 10 are shown without decimal.
	fmt.Println(BytesToHuman(23 << 30))

	// Multiples < 10 are shown with decimal.
	fmt.Println(BytesToHuman(5*1024 + 100))

	// Output: 512
	// 23G
	// 5.1K
}

func TestAllCommands(t *testing.T) {
	for _, cmdEntry := range ListBuiltinCommands() {
		t.Run(strings.Join(cmdEntry.Names, ","), func(t *testing.T) {
			if cmdEntry.Proc == nil {
				t.Fatal("nil command", cmdEntry.Names)
			}
			assert.Len(t, cmdEntry.Names, 2)
		})
	}
}

func TestResolve(t *testing.T) {
	assert.NotNil(t, Resolve("/bin/cat"))
	assert.NotNil(t, Resolve("/usr/bin//cat"))
	assert.Nil(t, Resolve("/bin/nope"))
	assert.Contains(t, ToolPaths(), "/usr/bin/sh")
}

func TestRunEachFileOrStdin(t *testing.T) {
	cmd := vostest.Command(Cat, "cat", "missing", "/tmp", "-")
	cmd.Stdin = "from stdin\n"

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "from stdin\n", res.Stdout)
	assert.Equal(t, "cat: missing: No such file or directory\ncat: /tmp: Is a directory\n", res.Stderr)
}

type goldenTestSuite map[string]goldenTest

type goldenTest struct {
	Args  []string
	Stdin string
	// Files are created relative to the home directory before running.
	Files map[string]string
}

func (gts goldenTestSuite) Run(t *testing.T, cmd vos.ProcessFunc) {
	t.Helper()

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	for tn, tc := range gts {
		t.Run(tn, func(t *testing.T) {
			cmd := vostest.Command(cmd, tc.Args[0], tc.Args[1:]...)
			cmd.Stdin = tc.Stdin
			for name, data := range tc.Files {
				require.NoError(t, writeFile(cmd.VFS, filepath.Join(vostest.Home, name), data))
			}

			out, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatal(err)
			}

			g.Assert(t, tn, out)
		})
	}
}

func writeFile(vfs vos.VFS, name, data string) error {
	if err := vfs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	return afero.WriteFile(vfs, name, []byte(data), 0644)
}
