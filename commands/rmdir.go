package commands

import (
	"errors"
	"fmt"
	"path"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

// Rmdir implements a POSIX rmdir command.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/rmdir.html
func Rmdir(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "rmdir [OPTION...] DIRECTORY...",
		Short: "Remove empty directories.",
	}

	parents := cmd.Flags().BoolLong("parents", 'p', "remove DIRECTORY and its ancestors")
	verbose := cmd.Flags().BoolLong("verbose", 'v', "print line for every deleted directory")

	return cmd.Run(virtOS, func() int {
		directories := cmd.Flags().Args()
		if len(directories) == 0 {
			fmt.Fprintln(virtOS.Stderr(), "rmdir: missing operand")
			return 1
		}

		anyFailed := false
		for _, dir := range directories {
			// With -p, "a/b/c" removes a/b/c then a/b then a.
			steps := []string{path.Clean(dir)}
			if *parents {
				for parent := path.Dir(steps[0]); parent != "." && parent != "/"; parent = path.Dir(parent) {
					steps = append(steps, parent)
				}
			}

			for _, step := range steps {
				if err := removeEmptyDir(virtOS, step); err != nil {
					fmt.Fprintf(virtOS.Stderr(), "rmdir: failed to remove '%s': %s\n", step, describeFsError(err))
					anyFailed = true
					break
				}
				if *verbose {
					fmt.Fprintf(virtOS.Stdout(), "rmdir: removing directory, '%s'\n", step)
				}
			}
		}

		if anyFailed {
			return 1
		}
		return 0
	})
}

func removeEmptyDir(virtOS vos.VOS, dir string) error {
	fi, err := lstat(virtOS, dir)
	switch {
	case err != nil:
		return err
	case !fi.IsDir():
		return errors.New("Not a directory")
	}

	empty, err := afero.IsEmpty(virtOS, dir)
	switch {
	case err != nil:
		return err
	case !empty:
		return errors.New("Directory not empty")
	}
	return virtOS.Remove(dir)
}

var _ vos.ProcessFunc = Rmdir

func init() {
	mustAddBinCmd("rmdir", Rmdir)
}
