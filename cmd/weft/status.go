package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"weft/internal/export"
	"weft/internal/store"
	"weft/internal/version"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database contents and annotation coverage",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(statusCmd)
}

type StatusResponseCLI struct {
	WeftVersion string                  `json:"weftVersion"`
	DBPath      string                  `json:"dbPath"`
	Stats       *store.Stats            `json:"stats"`
	Coverage    []export.AspectCoverage `json:"coverage,omitempty"`
	LastExport  string                  `json:"lastExport,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}
	coverage, err := export.Coverage(st, cfg.Annotation.Aspects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing coverage: %v\n", err)
		os.Exit(1)
	}

	exportDir := cfg.Export.Dir
	if !filepath.IsAbs(exportDir) {
		exportDir = filepath.Join(repoRoot, exportDir)
	}
	lastExport, err := export.LatestArchive(exportDir)
	if err != nil {
		logger.Warn("failed to scan export dir", "error", err)
	}

	emit(&StatusResponseCLI{
		WeftVersion: version.Version,
		DBPath:      st.Path(),
		Stats:       stats,
		Coverage:    coverage,
		LastExport:  lastExport,
	}, statusFormat)
}
