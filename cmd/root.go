package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/sandsh/sandsh/core/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	// exitCode is returned to the OS once the command finishes so deferred
	// cleanup still runs.
	exitCode int
)

// loadConfig loads the configuration from --config, falling back to the
// built-in defaults if the directory was never initialized.
func loadConfig(logger *log.Logger) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		logger.Println("No configuration found, using defaults (run init to create one).")
		return config.Default(), nil
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sandsh",
	Short: "Sandboxed shell interpreter",
	Long:  `A POSIX-like shell that runs every command inside a virtual sandbox.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
