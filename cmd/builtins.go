package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/sandsh/sandsh/commands"
	"github.com/sandsh/sandsh/core/interp"
	"github.com/spf13/cobra"
)

var builtinsPaths bool

func printBuiltins(w io.Writer, paths bool) {
	fmt.Fprintln(w, "shell builtins:")
	fmt.Fprintf(w, "  %s\n", strings.Join(interp.Builtins(), " "))

	fmt.Fprintln(w, "programs:")
	for _, entry := range commands.ListBuiltinCommands() {
		if paths {
			fmt.Fprintf(w, "  %s\n", strings.Join(entry.Names, " "))
			continue
		}
		fmt.Fprintf(w, "  %s\n", entry.Name())
	}
}

// builtinsCmd lists what a script can run without any root filesystem.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the shell builtins and the programs every sandbox provides.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printBuiltins(cmd.OutOrStdout(), builtinsPaths)
	},
}

func init() {
	builtinsCmd.Flags().BoolVarP(&builtinsPaths, "paths", "p", false, "show every path a program is installed at")
	rootCmd.AddCommand(builtinsCmd)
}
