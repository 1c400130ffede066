package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version metadata, set at build time via -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "aaa %s (commit %s, built %s, %s)\n",
			version, commit, buildDate, runtime.Version())
	},
}
