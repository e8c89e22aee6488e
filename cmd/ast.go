package cmd

import (
	"fmt"
	"io"

	"github.com/sandsh/sandsh/core/shell"
	"github.com/spf13/cobra"
)

var astCommand string

// astCmd dumps the syntax tree of a script for inspection.
var astCmd = &cobra.Command{
	Use:   "ast [-c COMMAND]",
	Short: "Print the JSON syntax tree of a script.",
	Long: `Print the JSON syntax tree of a script read from -c or stdin.

Empty input prints null.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		text := astCommand
		if !cmd.Flags().Changed("command") {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			text = string(data)
		}

		out, err := shell.DumpAST(text)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(astCmd)
	astCmd.Flags().StringVarP(&astCommand, "command", "c", "", "parse the COMMAND string")
}
