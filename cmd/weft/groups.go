package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/groups"
)

var groupsFormat string

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Partition modules into process groups by interaction connectivity",
	Long: `Compute connected components over the interaction graph. Modules
that interact, directly or transitively, land in the same group; groups
of two or more suggest independently deployable clusters, and modules
with no interactions at all are listed as isolated.

Groups are recomputed on demand and never stored.`,
	Args: cobra.NoArgs,
	Run:  runGroups,
}

func init() {
	groupsCmd.Flags().StringVar(&groupsFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(groupsCmd)
}

type GroupsResponseCLI struct {
	Report *groups.Report `json:"report"`
}

func runGroups(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	mods, err := st.ListModules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing modules: %v\n", err)
		os.Exit(1)
	}
	inters, err := st.ListInteractions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing interactions: %v\n", err)
		os.Exit(1)
	}

	emit(&GroupsResponseCLI{Report: groups.Compute(mods, inters)}, groupsFormat)
}
