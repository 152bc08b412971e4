package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/flows"
	"weft/internal/store"
)

var (
	featuresFormat    string
	createFeatureSlug string
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Group flows into named features",
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List features and their linked flows",
	Args:  cobra.NoArgs,
	Run:   runFeaturesList,
}

var featuresCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a feature",
	Long: `Create a feature. The slug defaults to a slugified name; creating
an existing slug returns the existing feature unchanged.

Examples:
  weft features create "Checkout"
  weft features create "Checkout" --slug checkout-v2`,
	Args: cobra.ExactArgs(1),
	Run:  runFeaturesCreate,
}

var featuresLinkCmd = &cobra.Command{
	Use:   "link <feature-slug> <flow-slug>",
	Short: "Link a flow to a feature",
	Args:  cobra.ExactArgs(2),
	Run:   runFeaturesLink,
}

func init() {
	featuresCmd.PersistentFlags().StringVar(&featuresFormat, "format", "json", "Output format (json, human)")
	featuresCreateCmd.Flags().StringVar(&createFeatureSlug, "slug", "", "Explicit slug (defaults to slugified name)")
	featuresCmd.AddCommand(featuresListCmd)
	featuresCmd.AddCommand(featuresCreateCmd)
	featuresCmd.AddCommand(featuresLinkCmd)
	rootCmd.AddCommand(featuresCmd)
}

type FeatureListResponseCLI struct {
	Features []store.Feature `json:"features"`
	Total    int             `json:"total"`
}

type FeatureResponseCLI struct {
	Feature *store.Feature `json:"feature"`
}

func runFeaturesList(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	features, err := st.ListFeatures()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing features: %v\n", err)
		os.Exit(1)
	}
	emit(&FeatureListResponseCLI{Features: features, Total: len(features)}, featuresFormat)
}

func runFeaturesCreate(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	name := args[0]
	slug := createFeatureSlug
	if slug == "" {
		slug = flows.Slugify(name)
	}
	if slug == "" {
		fmt.Fprintf(os.Stderr, "Error: feature name %q yields an empty slug\n", name)
		os.Exit(1)
	}

	if _, err := st.InsertFeature(name, slug); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating feature: %v\n", err)
		os.Exit(1)
	}
	feature, err := st.GetFeatureBySlug(slug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	emit(&FeatureResponseCLI{Feature: feature}, featuresFormat)
}

func runFeaturesLink(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	feature, err := st.GetFeatureBySlug(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flow, err := st.GetFlowBySlug(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := st.LinkFeatureFlow(feature.ID, flow.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error linking: %v\n", err)
		os.Exit(1)
	}

	updated, err := st.GetFeatureBySlug(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	emit(&FeatureResponseCLI{Feature: updated}, featuresFormat)
}
