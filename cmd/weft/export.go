package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"weft/internal/export"
	"weft/internal/store"
)

var (
	exportFormat string
	exportStdout bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the derived graph",
	Long: `Assemble a full snapshot (modules, interactions, flows with steps,
process groups, domains, coverage) and write it as zstd-compressed JSON
under the configured export directory, named by a fresh uuid.

With --stdout the snapshot streams uncompressed to standard output
instead, for piping into other tools.

Examples:
  weft export
  weft export --stdout | jq .modules`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format (json, human)")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Stream uncompressed JSON to stdout")
	rootCmd.AddCommand(exportCmd)
}

type ExportResponseCLI struct {
	ID              string       `json:"id"`
	Path            string       `json:"path"`
	RawBytes        int          `json:"rawBytes"`
	CompressedBytes int          `json:"compressedBytes"`
	Stats           *store.Stats `json:"stats,omitempty"`
}

func runExport(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	exporter := export.NewExporter(st, logger)
	snap, err := exporter.Build(cfg.Annotation.Aspects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building snapshot: %v\n", err)
		os.Exit(1)
	}

	if exportStdout {
		if err := exporter.WriteJSON(os.Stdout, snap); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dir := cfg.Export.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	result, err := exporter.WriteArchive(snap, dir, cfg.Export.CompressionLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
		os.Exit(1)
	}

	emit(&ExportResponseCLI{
		ID:              snap.Metadata.ID,
		Path:            result.Path,
		RawBytes:        result.RawBytes,
		CompressedBytes: result.CompressedBytes,
		Stats:           snap.Stats,
	}, exportFormat)
}
