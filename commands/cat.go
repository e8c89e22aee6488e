package commands

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sandsh/sandsh/core/vos"
)

// Cat implements the POSIX cat command.
//
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/cat.html
func Cat(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "cat [OPTION]... [FILE]...",
		Short: "Concatenate FILE(s) to standard output.",
	}

	number := cmd.Flags().Bool('n', "number all output lines")

	return cmd.Run(virtOS, func() int {
		w := virtOS.Stdout()
		line := 0
		return cmd.RunEachFileOrStdin(virtOS, cmd.Flags().Args(), func(_ string, fd io.Reader) error {
			if !*number {
				_, err := io.Copy(w, fd)
				return err
			}

			scanner := bufio.NewScanner(fd)
			for scanner.Scan() {
				line++
				fmt.Fprintf(w, "%6d\t%s\n", line, scanner.Text())
			}
			return scanner.Err()
		})
	})
}

var _ vos.ProcessFunc = Cat

func init() {
	mustAddBinCmd("cat", Cat)
}
