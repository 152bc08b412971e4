package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"weft/internal/config"
	"weft/internal/slogutil"
	"weft/internal/store"
)

var (
	storeOnce   sync.Once
	sharedStore *store.Store
	sharedCfg   *config.Config
	storeErr    error
)

// getStore opens the shared fact store and configuration. Both are
// lazily initialized on first use and shared across subcommands.
func getStore(repoRoot string, logger *slog.Logger) (*store.Store, *config.Config, error) {
	storeOnce.Do(func() {
		cfg, err := config.LoadConfig(repoRoot)
		if err != nil {
			logger.Warn("failed to load config, using defaults", "error", err)
			cfg = config.DefaultConfig()
		}
		sharedCfg = cfg

		st, err := store.Open(repoRoot, logger)
		if err != nil {
			storeErr = fmt.Errorf("failed to open database: %w", err)
			return
		}
		sharedStore = st
	})
	return sharedStore, sharedCfg, storeErr
}

// mustGetStore returns the shared store and config or exits on error.
func mustGetStore(repoRoot string, logger *slog.Logger) (*store.Store, *config.Config) {
	st, cfg, err := getStore(repoRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	return st, cfg
}

// getRepoRoot returns the repository root directory.
func getRepoRoot() (string, error) {
	return os.Getwd()
}

// mustGetRepoRoot returns the repository root or exits on error.
func mustGetRepoRoot() string {
	repoRoot, err := getRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return repoRoot
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newLogger builds the CLI logger on stderr; the persistent verbosity
// flags pick the level.
func newLogger() *slog.Logger {
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromVerbosity(verbosity, quietFlag))
}
