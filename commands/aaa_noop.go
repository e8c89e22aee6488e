package commands

import (
	"github.com/sandsh/sandsh/core/vos"
)

// statusCommand returns a program that ignores its arguments, including bad
// flags, and exits with status.
func statusCommand(use, short string, status int) vos.ProcessFunc {
	return func(virtOS vos.VOS) int {
		cmd := &SimpleCommand{Use: use, Short: short, NeverBail: true}
		return cmd.Run(virtOS, func() int { return status })
	}
}

func init() {
	mustAddBinCmd("true", statusCommand("true", "Do nothing, successfully.", 0))
	mustAddBinCmd("false", statusCommand("false", "Do nothing, unsuccessfully.", 1))

	// The sandbox filesystem has no caches to flush.
	mustAddBinCmd("sync", statusCommand("sync", "Synchronize cached writes to persistent storage.", 0))
}
