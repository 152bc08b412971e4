package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"weft/internal/annotate"
	"weft/internal/classify"
	"weft/internal/config"
)

var (
	annotateFormat  string
	annotateAspects []string
	annotateDryRun  bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Classify definitions with an LLM until aspect coverage converges",
	Long: `Run the annotation scheduler: batch unannotated definitions, send
them to the configured classifier, and store returned aspect values as
definition metadata. Iterates until coverage is complete, the iteration
budget runs out, or every remaining pair has exhausted its attempts.

The provider and model come from the classifier config section. API
keys are read from the environment (GEMINI_API_KEY or OPENAI_API_KEY),
optionally via a repo-local .env file.

Examples:
  weft annotate
  weft annotate --aspect purpose --aspect domain
  weft annotate --dry-run`,
	Args: cobra.NoArgs,
	Run:  runAnnotate,
}

func init() {
	annotateCmd.Flags().StringVar(&annotateFormat, "format", "json", "Output format (json, human)")
	annotateCmd.Flags().StringArrayVar(&annotateAspects, "aspect", nil, "Aspect to annotate (repeatable; defaults to config)")
	annotateCmd.Flags().BoolVar(&annotateDryRun, "dry-run", false, "Classify but do not write metadata")
	rootCmd.AddCommand(annotateCmd)
}

type AnnotateResponseCLI struct {
	Provider string               `json:"provider"`
	Model    string               `json:"model"`
	Summary  *annotate.RunSummary `json:"summary"`
}

func runAnnotate(cmd *cobra.Command, args []string) {
	logger := newLogger()
	ctx := newContext()
	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	classifier, err := newClassifier(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating classifier: %v\n", err)
		os.Exit(1)
	}

	aspects := annotateAspects
	if len(aspects) == 0 {
		aspects = cfg.Annotation.Aspects
	}

	scheduler := annotate.New(st, classifier, annotate.Options{
		Aspects:       aspects,
		BatchSize:     cfg.Annotation.BatchSize,
		MaxIterations: cfg.Annotation.MaxIterations,
		MaxAttempts:   cfg.Annotation.MaxAttempts,
		Concurrency:   cfg.Annotation.Concurrency,
		DryRun:        annotateDryRun,
	}, logger)

	summary, err := scheduler.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error annotating: %v\n", err)
		os.Exit(1)
	}

	emit(&AnnotateResponseCLI{
		Provider: cfg.Classifier.Provider,
		Model:    cfg.Classifier.Model,
		Summary:  summary,
	}, annotateFormat)
}

// newClassifier builds the configured provider wrapped in retry with
// backoff. Permanent failures (bad key, malformed request) bypass the
// retry loop.
func newClassifier(cfg *config.Config) (classify.Classifier, error) {
	reg, err := classify.LoadRegistry(cfg.Classifier.AspectsFile)
	if err != nil {
		return nil, err
	}

	var inner classify.Classifier
	switch cfg.Classifier.Provider {
	case "gemini", "":
		inner, err = classify.NewGeminiClassifier(newContext(),
			os.Getenv("GEMINI_API_KEY"), cfg.Classifier.Model, reg, newLogger())
	case "openai":
		inner, err = classify.NewOpenAIClassifier(
			os.Getenv("OPENAI_API_KEY"), cfg.Classifier.Model, reg, newLogger())
	case "fake":
		// Offline runs: every definition gets placeholder values.
		inner = &classify.Fake{}
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Classifier.Provider)
	}
	if err != nil {
		return nil, err
	}

	return classify.WithRetry(inner, classify.RetryOptions{
		MaxAttempts: cfg.Classifier.RetryAttempts,
		BaseDelay:   time.Duration(cfg.Classifier.RetryBaseMs) * time.Millisecond,
	}, newLogger()), nil
}
