package commands

import (
	"fmt"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
)

// Every sandboxed process runs as one user in a group of the same name and
// id, so uid and gid are interchangeable here.

// Whoami implements the POSIX whoami command.
func Whoami(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "whoami",
		Short: "Print the user name associated with the current effective user ID.",

		// Never bail, even if args are bad.
		NeverBail: true,
	}

	return cmd.Run(virtOS, func() int {
		fmt.Fprintln(virtOS.Stdout(), UidResolver(virtOS)(virtOS.Getuid()))
		return 0
	})
}

// Id implements a subset of the POSIX id command.
func Id(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "id [-u|-g|-G [-n]]",
		Short: "Print user and group information.",
	}
	userOnly := cmd.Flags().Bool('u', "print only the effective user ID")
	groupOnly := cmd.Flags().Bool('g', "print only the effective group ID")
	groups := cmd.Flags().Bool('G', "print all group IDs")
	names := cmd.Flags().Bool('n', "print names instead of numbers")

	return cmd.Run(virtOS, func() int {
		w := virtOS.Stdout()
		uid := virtOS.Getuid()
		name := UidResolver(virtOS)(uid)

		switch {
		case *userOnly || *groupOnly || *groups:
			if *names {
				fmt.Fprintln(w, name)
			} else {
				fmt.Fprintln(w, uid)
			}
		case *names:
			fmt.Fprintln(virtOS.Stderr(), "id: cannot print only names or real IDs in default format")
			return 1
		default:
			fmt.Fprintf(w, "uid=%[1]d(%[2]s) gid=%[1]d(%[2]s) groups=%[1]d(%[2]s)\n", uid, name)
		}
		return 0
	})
}

// Hostname prints the sandbox's host name, which can't be changed from
// inside it.
func Hostname(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "hostname [-s]",
		Short: "Show the system's host name.",
	}
	short := cmd.Flags().Bool('s', "trim the domain part")

	return cmd.Run(virtOS, func() int {
		if len(cmd.Flags().Args()) > 0 {
			fmt.Fprintln(virtOS.Stderr(), "hostname: you must be root to change the host name")
			return 1
		}

		host, err := virtOS.Hostname()
		if err != nil {
			cmd.LogProgramError(virtOS, err)
			return 1
		}
		if *short {
			host, _, _ = strings.Cut(host, ".")
		}

		fmt.Fprintln(virtOS.Stdout(), host)
		return 0
	})
}

var (
	_ vos.ProcessFunc = Whoami
	_ vos.ProcessFunc = Id
	_ vos.ProcessFunc = Hostname
)

func init() {
	mustAddBinCmd("whoami", Whoami)
	mustAddBinCmd("id", Id)
	mustAddBinCmd("hostname", Hostname)
}
