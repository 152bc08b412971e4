package main

import (
	"weft/internal/version"

	"github.com/spf13/cobra"
)

var (
	// verbosity and quietFlag feed LevelFromVerbosity; logs go to
	// stderr so JSON output on stdout stays parseable.
	verbosity int
	quietFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - structural codebase model",
	Long: `Weft builds a structural model of a codebase - files, definitions,
module groupings, cross-module interactions, and end-to-end flows -
stores it in .weft/weft.db, and progressively enriches it through an
annotation pipeline. Flows are the weft threads woven through the warp
of the module graph.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("weft version {{.Version}}\n")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false,
		"Suppress all log output")
}
