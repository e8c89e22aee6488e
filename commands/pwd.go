package commands

import (
	"fmt"

	"github.com/sandsh/sandsh/core/vos"
)

// Pwd implements the UNIX pwd command.
func Pwd(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current working directory.",
	}

	return cmd.Run(virtOS, func() int {
		pwd, err := virtOS.Getwd()
		if err != nil {
			cmd.LogProgramError(virtOS, err)
			return 1
		}
		fmt.Fprintln(virtOS.Stdout(), pwd)
		return 0
	})
}

var _ vos.ProcessFunc = Pwd

func init() {
	mustAddBinCmd("pwd", Pwd)
}
