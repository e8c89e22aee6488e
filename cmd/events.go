package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sandsh/sandsh/core/config"
	"github.com/sandsh/sandsh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report [FILE]",
	Short: "Show a report of logged events.",
	Long: `Show a report of the events in FILE, or of the application log in the
configuration directory if no file is given.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		fd, err := openEventLog(args)
		if err != nil {
			return err
		}
		defer fd.Close()

		var report logger.Report
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(&report)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d\n%s", report.Sessions(), out)

		return nil
	},
}

func openEventLog(args []string) (io.ReadCloser, error) {
	if len(args) > 0 {
		return os.Open(args[0])
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return cfg.ReadAppLog()
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
}
