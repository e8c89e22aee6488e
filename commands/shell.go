package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sandsh/sandsh/core/interp"
	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

const (
	// EnvShellLevel counts how deeply shells are nested.
	EnvShellLevel = "SHLVL"
	// MaxShellLevel bounds nesting so a script can't spawn shells forever.
	MaxShellLevel = 16
)

// RunShell implements sh by starting a new interpreter against the sandbox
// the process runs in. The script comes from -c, a file argument or stdin.
func RunShell(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "sh [-eu] [-c COMMAND [NAME [ARG]...] | FILE [ARG]...]",
		Short: "Standard command interpreter for the system.",
	}
	commandFlag := cmd.Flags().String('c', "", "read commands from the COMMAND string")
	errexit := cmd.Flags().Bool('e', "exit immediately if a command fails")
	nounset := cmd.Flags().Bool('u', "treat unset variables as an error")

	return cmd.Run(virtOS, func() int {
		level, _ := strconv.Atoi(virtOS.Getenv(EnvShellLevel))
		if level >= MaxShellLevel {
			fmt.Fprintf(virtOS.Stderr(), "sh: maximum nesting level (%d) exceeded\n", MaxShellLevel)
			return 2
		}

		args := cmd.Flags().Args()
		scriptName := cmd.name(virtOS)
		var script, stdin string

		switch {
		case cmd.Flags().IsSet('c'):
			script = *commandFlag
			if len(args) > 0 {
				scriptName, args = args[0], args[1:]
			}
			data, err := io.ReadAll(virtOS.Stdin())
			if err != nil {
				cmd.LogProgramError(virtOS, err)
				return 2
			}
			stdin = string(data)

		case len(args) > 0:
			data, err := afero.ReadFile(virtOS, args[0])
			if err != nil {
				fmt.Fprintf(virtOS.Stderr(), "sh: %s\n", fileError(args[0], err))
				return 127
			}
			script = string(data)
			scriptName, args = args[0], args[1:]

		default:
			data, err := io.ReadAll(virtOS.Stdin())
			if err != nil {
				cmd.LogProgramError(virtOS, err)
				return 2
			}
			script = string(data)
		}

		env := make(map[string]string)
		for _, kv := range virtOS.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				env[k] = v
			}
		}
		env[EnvShellLevel] = strconv.Itoa(level + 1)

		cwd, err := virtOS.Getwd()
		if err != nil {
			cmd.LogProgramError(virtOS, err)
			return 2
		}

		in := interp.New(virtOS.Host(), interp.WithDefaults(interp.Defaults{
			Env:        env,
			Cwd:        cwd,
			ScriptName: scriptName,
			Positional: append([]string{}, args...),
			Options: interp.Options{
				Errexit: *errexit,
				Nounset: *nounset,
			},
		}))

		res, _ := in.RunStdin(script, stdin)
		io.WriteString(virtOS.Stdout(), res.Stdout)
		io.WriteString(virtOS.Stderr(), res.Stderr)
		if in.Exited() {
			return res.ExitCode
		}

		closing := in.Close()
		io.WriteString(virtOS.Stdout(), closing.Stdout)
		io.WriteString(virtOS.Stderr(), closing.Stderr)
		return closing.ExitCode
	})
}

var _ vos.ProcessFunc = RunShell

func init() {
	mustAddBinCmd("sh", RunShell)
}
