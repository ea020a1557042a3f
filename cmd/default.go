package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	// Without a subcommand the interactive manager opens. Positional
	// arguments are files or deep links handed over by the desktop, so they
	// are accepted here too.
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		guiCmd.Run(guiCmd, args)
	}
}
