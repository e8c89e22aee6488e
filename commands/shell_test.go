package commands

import (
	"testing"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunShell(t *testing.T) {
	cases := goldenTestSuite{
		"echo":     {Args: []string{"sh", "-c", `echo "hello"`}},
		"echo-cat": {Args: []string{"sh", "-c", `echo "hello" > foo; read line < foo; echo "got $line"`}},
		"args":     {Args: []string{"sh", "-c", `echo "$0 $# $2"`, "name", "one", "two"}},
		"stdin":    {Args: []string{"sh"}, Stdin: "x=4\necho $x$x\n"},
		"script": {
			Args:  []string{"sh", "run.sh", "world"},
			Files: map[string]string{"run.sh": "greet() { echo \"hello $1\"; }\ngreet \"$1\"\nexit 3\n"},
		},
		"missing-script": {Args: []string{"sh", "nope.sh"}},
		"syntax-error":   {Args: []string{"sh", "-c", `echo )`}},
		"errexit":        {Args: []string{"sh", "-ec", `false; echo unreachable`}},
		"exit-trap":      {Args: []string{"sh", "-c", `trap 'echo bye' EXIT; echo hi`}},
		"nested":         {Args: []string{"sh", "-c", `sh -c 'echo level $SHLVL'`}},
		"forward-stdin":  {Args: []string{"sh", "-c", `read a; echo "[$a]"`}, Stdin: "input\n"},
	}

	cases.Run(t, RunShell)
}

func TestRunShell_exitStatus(t *testing.T) {
	cases := []struct {
		name   string
		args   []string
		expect int
	}{
		{"success", []string{"-c", "true"}, 0},
		{"last status", []string{"-c", "false"}, 1},
		{"exit", []string{"-c", "exit 42; echo no"}, 42},
		{"syntax", []string{"-c", "fi"}, 2},
		{"missing file", []string{"nope.sh"}, 127},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := vostest.Command(RunShell, "sh", tc.args...).Run()
			require.NoError(t, err)
			assert.Equal(t, tc.expect, res.ExitCode)
		})
	}
}

func TestRunShell_nestingLimit(t *testing.T) {
	cmd := vostest.Command(RunShell, "sh", "-c", "echo hi")
	cmd.VEnv.Setenv(EnvShellLevel, "16")

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "sh: maximum nesting level (16) exceeded\n", res.Stderr)
}

func TestRunShell_sharesFilesystem(t *testing.T) {
	cmd := vostest.Command(RunShell, "sh", "-c", "echo data > out.txt")

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	data, err := cmd.Sandbox.ReadFile(vostest.Home + "/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "data\n", data)
}
