package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/vos"
)

// Env implements the POSIX env command.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/env.html
func Env(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "env [-i] [-u NAME]... [NAME=VALUE]... [COMMAND [ARG]...]",
		Short: "Set each NAME to VALUE in the environment and run COMMAND, or print the environment.",
	}

	ignore := cmd.Flags().BoolLong("ignore-environment", 'i', "start with an empty environment")
	unset := cmd.Flags().ListLong("unset", 'u', "remove variable from the environment", "NAME")

	return cmd.Run(virtOS, func() int {
		env := vos.NewMapEnv()
		if !*ignore {
			vos.CopyEnv(env, virtOS)
		}
		for _, name := range *unset {
			env.Unsetenv(name)
		}

		args := cmd.Flags().Args()
		for len(args) > 0 {
			key, value, ok := strings.Cut(args[0], "=")
			if !ok {
				break
			}
			env.Setenv(key, value)
			args = args[1:]
		}

		if len(args) == 0 {
			for _, kv := range env.Environ() {
				fmt.Fprintln(virtOS.Stdout(), kv)
			}
			return 0
		}

		return spawnForward(virtOS, host.SpawnRequest{
			Program: args[0],
			Args:    args[1:],
			Env:     env.Environ(),
		})
	})
}

// spawnForward runs req in the caller's sandbox with the caller's working
// directory and standard input, copying its output back. It returns the
// exit status the shell would report.
func spawnForward(virtOS vos.VOS, req host.SpawnRequest) int {
	if req.Dir == "" {
		req.Dir, _ = virtOS.Getwd()
	}
	stdin, err := io.ReadAll(virtOS.Stdin())
	if err != nil {
		fmt.Fprintf(virtOS.Stderr(), "%s: %v\n", req.Program, err)
		return 1
	}
	req.Stdin = string(stdin)

	res, err := virtOS.Host().Spawn(req)
	if err != nil {
		if host.KindOf(err) == host.NotFound {
			fmt.Fprintf(virtOS.Stderr(), "%s: No such file or directory\n", req.Program)
			return 127
		}
		fmt.Fprintf(virtOS.Stderr(), "%s: %v\n", req.Program, err)
		return 126
	}

	io.WriteString(virtOS.Stdout(), res.Stdout)
	io.WriteString(virtOS.Stderr(), res.Stderr)
	return res.ExitCode
}

var _ vos.ProcessFunc = Env

func init() {
	mustAddBinCmd("env", Env)
}
