package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Classifier API keys may live in a repo-local .env; a missing
	// file is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		newLogger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
