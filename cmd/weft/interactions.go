package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/store"
)

var (
	interactionsFormat string
	inferFrom          string
	inferTo            string
	inferSemantic      string
	inferPattern       string
)

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect and record module interactions",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded interactions with module paths resolved",
	Args:  cobra.NoArgs,
	Run:   runInteractionsList,
}

var interactionsInferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Propose an interaction and run it through the admission gate",
	Long: `Record a semantically inferred interaction between two modules.

The proposal passes through the same gate as built candidates: self
loops, duplicates, reversals of syntactic evidence, and edges initiated
by type-only modules are rejected. A rejection is reported, not an
error.

Examples:
  weft interactions infer --from shop.core --to shop.audit
  weft interactions infer --from shop.core --to shop.audit --semantic "emits audit events"`,
	Args: cobra.NoArgs,
	Run:  runInteractionsInfer,
}

func init() {
	interactionsCmd.PersistentFlags().StringVar(&interactionsFormat, "format", "json", "Output format (json, human)")
	interactionsInferCmd.Flags().StringVar(&inferFrom, "from", "", "Initiating module path (required)")
	interactionsInferCmd.Flags().StringVar(&inferTo, "to", "", "Target module path (required)")
	interactionsInferCmd.Flags().StringVar(&inferSemantic, "semantic", "", "One-line description of the dependency")
	interactionsInferCmd.Flags().StringVar(&inferPattern, "pattern", interactions.PatternBusiness, "Dependency pattern (business, utility)")
	interactionsInferCmd.MarkFlagRequired("from")
	interactionsInferCmd.MarkFlagRequired("to")

	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsInferCmd)
	rootCmd.AddCommand(interactionsCmd)
}

// InteractionCLI is one interaction with module ids resolved to paths.
type InteractionCLI struct {
	ID        int64    `json:"id"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Direction string   `json:"direction"`
	Weight    int      `json:"weight"`
	Pattern   string   `json:"pattern"`
	Semantic  string   `json:"semantic,omitempty"`
	Source    string   `json:"source"`
	Symbols   []string `json:"symbols,omitempty"`
}

type InteractionListResponseCLI struct {
	Interactions []InteractionCLI `json:"interactions"`
	Total        int              `json:"total"`
}

type InferResponseCLI struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Admitted      bool   `json:"admitted"`
	Reason        string `json:"reason,omitempty"`
	InteractionID int64  `json:"interactionId,omitempty"`
}

func runInteractionsList(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	inters, err := st.ListInteractions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing interactions: %v\n", err)
		os.Exit(1)
	}
	mods, err := st.ListModules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing modules: %v\n", err)
		os.Exit(1)
	}
	paths := modulePathIndex(mods)

	resp := &InteractionListResponseCLI{Total: len(inters)}
	for _, in := range inters {
		resp.Interactions = append(resp.Interactions, InteractionCLI{
			ID:        in.ID,
			From:      paths[in.FromModuleID],
			To:        paths[in.ToModuleID],
			Direction: in.Direction,
			Weight:    in.Weight,
			Pattern:   in.Pattern,
			Semantic:  in.Semantic,
			Source:    string(in.Source),
			Symbols:   in.Symbols,
		})
	}
	emit(resp, interactionsFormat)
}

func runInteractionsInfer(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	from := mustResolveModule(st, inferFrom)
	to := mustResolveModule(st, inferTo)

	existing, err := st.ListInteractions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing interactions: %v\n", err)
		os.Exit(1)
	}
	typeOnly, err := st.TypeOnlyModuleIDs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding type-only modules: %v\n", err)
		os.Exit(1)
	}

	gate := interactions.NewGate(interactions.NewPairSet(existing), typeOnly)
	res := gate.Check(from.ID, to.ID)

	resp := &InferResponseCLI{From: from.Path, To: to.Path}
	if res.Pass {
		id, err := st.UpsertInteraction(&interactions.Interaction{
			FromModuleID: from.ID,
			ToModuleID:   to.ID,
			Direction:    interactions.DirectionUni,
			Weight:       1,
			Pattern:      inferPattern,
			Semantic:     inferSemantic,
			Source:       interactions.SourceInferred,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recording interaction: %v\n", err)
			os.Exit(1)
		}
		resp.Admitted = true
		resp.InteractionID = id
		logger.Info("interaction inferred", "from", from.Path, "to", to.Path, "id", id)
	} else {
		resp.Reason = string(res.Reason)
		logger.Info("inference rejected", "from", from.Path, "to", to.Path, "reason", res.Reason)
	}
	emit(resp, interactionsFormat)
}

// mustResolveModule looks a module up by path or exits.
func mustResolveModule(st *store.Store, path string) *modules.Module {
	m, err := st.GetModuleByPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return m
}

// modulePathIndex maps module ids to paths for display.
func modulePathIndex(mods []*modules.Module) map[int64]string {
	idx := make(map[int64]string, len(mods))
	for _, m := range mods {
		idx[m.ID] = m.Path
	}
	return idx
}
