package cmd

import (
	"fmt"
	"log"

	"github.com/sandsh/sandsh/core/config"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var (
	initCheck bool
	initShow  bool
)

// initCmd creates the configuration directory, or validates an existing one
// with --check.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the --config directory with a default configuration.",
	Long: `Create the --config directory with a default config.yaml and a logs
directory. An existing config.yaml is validated but never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var cfg *config.Configuration
		var err error
		if initCheck {
			cfg, err = config.Load(cfgPath)
		} else {
			cfg, err = config.Initialize(cfgPath, log.New(cmd.ErrOrStderr(), "", 0))
		}
		if err != nil {
			return err
		}

		if initShow {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initCheck, "check", false, "only validate the existing configuration")
	initCmd.Flags().BoolVar(&initShow, "show", false, "print the effective configuration")
	rootCmd.AddCommand(initCmd)
}
