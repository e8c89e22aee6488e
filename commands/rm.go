package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/sandsh/sandsh/core/vos"
)

// Rm implements a POSIX rm command.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/rm.html
func Rm(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "rm [OPTION...] FILE...",
		Short: "Remove files or directories.",
	}

	recursive := cmd.Flags().BoolLong("recursive", 'r', "remove directories and their contents recursively")
	cmd.Flags().Flag(recursive, 'R', "same as -r")
	force := cmd.Flags().BoolLong("force", 'f', "ignore missing files and arguments, never prompt")
	verbose := cmd.Flags().BoolLong("verbose", 'v', "explain what is being done")

	return cmd.Run(virtOS, func() int {
		files := cmd.Flags().Args()
		if len(files) == 0 && !*force {
			fmt.Fprintln(virtOS.Stderr(), "rm: missing operand")
			return 1
		}

		anyFailed := false
		for _, file := range files {
			stat, statErr := lstat(virtOS, file)
			var err error
			switch {
			case errors.Is(statErr, fs.ErrNotExist):
				if *force {
					continue
				}
				err = statErr
			case statErr != nil:
				err = statErr
			case stat.IsDir() && !*recursive:
				err = errors.New("Is a directory")
			case stat.IsDir():
				err = virtOS.RemoveAll(file)
			default:
				err = virtOS.Remove(file)
			}

			if err != nil {
				fmt.Fprintf(virtOS.Stderr(), "rm: cannot remove '%s': %s\n", file, describeFsError(err))
				anyFailed = true
				continue
			}
			if *verbose {
				fmt.Fprintf(virtOS.Stdout(), "removed '%s'\n", file)
			}
		}

		if anyFailed {
			return 1
		}
		return 0
	})
}

var _ vos.ProcessFunc = Rm

func init() {
	mustAddBinCmd("rm", Rm)
}
