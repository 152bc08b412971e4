package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"weft/internal/ingest"
)

var (
	ingestFormat string
	ingestSCIP   string
	ingestFacts  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load raw facts into the store",
	Long: `Ingest facts from a SCIP index or a YAML facts file.

Without flags, reads the SCIP index configured at ingest.scipIndexPath
(default index.scip). Module paths derive from file layout under the
configured prefix unless the facts file assigns them explicitly.

Examples:
  weft ingest
  weft ingest --scip ./index.scip
  weft ingest --facts ./facts.yaml`,
	Args: cobra.NoArgs,
	Run:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "json", "Output format (json, human)")
	ingestCmd.Flags().StringVar(&ingestSCIP, "scip", "", "Path to a SCIP index (overrides config)")
	ingestCmd.Flags().StringVar(&ingestFacts, "facts", "", "Path to a YAML/JSON facts file")
	rootCmd.AddCommand(ingestCmd)
}

// IngestResponseCLI reports one ingestion pass for CLI output.
type IngestResponseCLI struct {
	Source string         `json:"source"`
	Result *ingest.Result `json:"result"`
}

func runIngest(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newLogger()

	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	ing := ingest.New(st, ingest.Options{
		ModulePrefix: cfg.Ingest.ModulePrefix,
		Ignore:       cfg.Ingest.Ignore,
	}, logger)

	var (
		source string
		result *ingest.Result
		err    error
	)
	switch {
	case ingestFacts != "":
		source = ingestFacts
		result, err = ing.IngestFactsFile(ingestFacts)
	default:
		source = ingestSCIP
		if source == "" {
			source = filepath.Join(repoRoot, cfg.Ingest.ScipIndexPath)
		}
		result, err = ing.IngestSCIPFile(source)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error ingesting facts: %v\n", err)
		os.Exit(1)
	}

	emit(&IngestResponseCLI{Source: source, Result: result}, ingestFormat)

	logger.Info("ingestion complete",
		"source", source,
		"definitions", result.Definitions,
		"duration", time.Since(start).Milliseconds(),
	)
}
