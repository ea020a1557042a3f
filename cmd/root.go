package cmd

import (
	"os"

	"bmod-manager/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "bmod-manager [files or links...]",
	Short:   "Installs, removes and inspects game mods",
	Version: config.Version,
	Long: `bmod-manager keeps a mods folder, imports mods from files, archives and
download links, and applies them to the game through a worker process.

Run without a subcommand to open the interactive manager.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
