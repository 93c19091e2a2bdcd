package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose    bool
	configPath string
	appName    string
)

var rootCmd = &cobra.Command{
	Use:   "uiflow",
	Short: "Resilient browser flows for the Falcon Foundry console",
	Long: `uiflow drives the Falcon Foundry console through a real browser to
install an app, disable workflow provisioning and uninstall it again.

Every page action is retried, every attempt is journaled in a local SQLite
database, and failed runs can be resumed at the step that failed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "uiflow.toml", "path to the TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&appName, "app", "", "app to operate on (default: console.app_name)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("uiflow {{.Version}}\n")
}
