package commands

import (
	"fmt"
	"path"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
)

// Which implements the UNIX which command.
func Which(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "which [-a] COMMAND...",
		Short: "Locate a command.",
	}
	all := cmd.Flags().Bool('a', "print all matching executables in PATH, not just the first")

	return cmd.RunEachArg(virtOS, func(arg string) error {
		if !*all || strings.Contains(arg, "/") {
			res, err := vos.LookPath(virtOS, arg)
			if err != nil {
				return err
			}
			fmt.Fprintln(virtOS.Stdout(), res)
			return nil
		}

		found := false
		for _, dir := range strings.Split(virtOS.Getenv("PATH"), ":") {
			if dir == "" {
				dir = "."
			}
			if res, err := vos.LookPath(virtOS, path.Join(dir, arg)); err == nil {
				fmt.Fprintln(virtOS.Stdout(), res)
				found = true
			}
		}
		if !found {
			// Reports the same error as a plain lookup.
			_, err := vos.LookPath(virtOS, arg)
			return err
		}
		return nil
	})
}

var _ vos.ProcessFunc = Which

func init() {
	mustAddBinCmd("which", Which)
}
