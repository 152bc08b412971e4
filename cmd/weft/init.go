package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"weft/internal/config"
	"weft/internal/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize weft in the current repository",
	Long:  "Creates a .weft/ directory with default configuration and an empty fact database",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"Reinitialize, removing the existing .weft directory")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()

	weftDir := filepath.Join(repoRoot, store.DirName)
	if _, err := os.Stat(weftDir); err == nil {
		if !initForce {
			// Idempotent: already initialized is success.
			fmt.Println("weft already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(weftDir, "config.json"))
			fmt.Println("\nRun 'weft init --force' to reinitialize.")
			return nil
		}
		if err := os.RemoveAll(weftDir); err != nil {
			return fmt.Errorf("failed to remove existing %s directory: %w", store.DirName, err)
		}
		logger.Info("removed existing state directory", "dir", weftDir)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(repoRoot); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Open once so the schema exists before the first ingest.
	st, err := store.Open(repoRoot, logger)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if err := st.Close(); err != nil {
		return err
	}

	fmt.Println("weft initialized.")
	fmt.Printf("Configuration written to: %s\n", filepath.Join(weftDir, "config.json"))
	fmt.Printf("Database created at: %s\n", filepath.Join(weftDir, store.DBName))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'weft ingest' to load facts from a SCIP index")
	fmt.Println("  2. Run 'weft build' to derive interactions, flows, and groups")

	return nil
}
