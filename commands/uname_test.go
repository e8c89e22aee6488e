package commands

import (
	"testing"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUname(t *testing.T) {
	cases := goldenTestSuite{
		"no-arg":   {Args: []string{"uname"}},
		"all":      {Args: []string{"uname", "-a"}},
		"kernel":   {Args: []string{"uname", "-srv"}},
		"node":     {Args: []string{"uname", "-n"}},
		"machine":  {Args: []string{"uname", "-m"}},
		"hardware": {Args: []string{"uname", "-mpio"}},
	}

	cases.Run(t, Uname)
}

func TestUname_procOverrides(t *testing.T) {
	cmd := vostest.Command(Uname, "uname", "-sr")
	require.NoError(t, writeFile(cmd.VFS, "/proc/sys/kernel/osrelease", "6.1.0-custom\n"))
	require.NoError(t, writeFile(cmd.VFS, "/proc/sys/kernel/ostype", "\n"))

	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, "Linux 6.1.0-custom\n", string(out))
}
