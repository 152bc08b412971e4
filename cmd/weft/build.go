package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"weft/internal/flows"
	"weft/internal/groups"
	"weft/internal/ingest"
	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/store"
	"weft/internal/symbols"
)

var buildFormat string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Derive the structural model from ingested facts",
	Long: `Run the construction pipeline over previously ingested facts:

  1. validate the module tree, applying MODULES.toml declarations
  2. derive and gate module interactions from symbol evidence
  3. trace flows from entry points, backfilling gap flows
  4. partition modules into process groups

The pipeline is idempotent. Rerunning replaces derived flows; features
keep their links to flows that come back under the same slug.

Examples:
  weft build
  weft build --format human`,
	Args: cobra.NoArgs,
	Run:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(buildCmd)
}

// BuildResponseCLI reports one construction pass for CLI output.
type BuildResponseCLI struct {
	Modules      BuildModulesCLI            `json:"modules"`
	Interactions BuildInteractionsCLI       `json:"interactions"`
	Flows        BuildFlowsCLI              `json:"flows"`
	Groups       *groups.Report             `json:"groups"`
	Validation   flows.FlowValidationResult `json:"validation"`
	DurationMs   int64                      `json:"durationMs"`
}

type BuildModulesCLI struct {
	Total    int `json:"total"`
	Declared int `json:"declared"`
	TypeOnly int `json:"typeOnly"`
}

type BuildInteractionsCLI struct {
	Candidates int            `json:"candidates"`
	Admitted   int            `json:"admitted"`
	Rejected   map[string]int `json:"rejected,omitempty"`
	Total      int            `json:"total"`
}

type BuildFlowsCLI struct {
	Traced           int `json:"traced"`
	Gap              int `json:"gap"`
	Total            int `json:"total"`
	RelinkedFeatures int `json:"relinkedFeatures"`
}

func runBuild(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newLogger()

	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	// Stage 1: module tree.
	declared, err := applyDeclarations(st, repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error applying module declarations: %v\n", err)
		os.Exit(1)
	}
	mods, err := st.ListModules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing modules: %v\n", err)
		os.Exit(1)
	}
	if _, err := modules.BuildTree(mods); err != nil {
		fmt.Fprintf(os.Stderr, "Error validating module tree: %v\n", err)
		os.Exit(1)
	}

	// Stage 2: interactions.
	defs, err := st.ListDefinitions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing definitions: %v\n", err)
		os.Exit(1)
	}
	edges, err := st.ListCallEdges()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing call edges: %v\n", err)
		os.Exit(1)
	}
	imports, err := st.ListImportEdges()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing import edges: %v\n", err)
		os.Exit(1)
	}
	fileModule, err := fileModuleIndex(st, cfg.Ingest.ModulePrefix, cfg.Ingest.Ignore, mods)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error mapping files to modules: %v\n", err)
		os.Exit(1)
	}

	candidates := interactions.CandidatesFromCalls(defs, edges)
	candidates = append(candidates, interactions.CandidatesFromImports(imports, fileModule)...)

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
	admitted := 0
	rejected := make(map[string]int)
	for _, c := range candidates {
		res := gate.Admit(c.From, c.To, c.Source)
		if !res.Pass {
			rejected[string(res.Reason)]++
			continue
		}
		if _, err := st.UpsertInteraction(c.Interaction()); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording interaction: %v\n", err)
			os.Exit(1)
		}
		admitted++
	}

	inters, err := st.ListInteractions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing interactions: %v\n", err)
		os.Exit(1)
	}

	// Stage 3: flows.
	meta := make(map[int64]symbols.MetadataSet)
	for _, d := range defs {
		m, err := st.GetMetadata(d.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading metadata: %v\n", err)
			os.Exit(1)
		}
		if len(m) > 0 {
			meta[d.ID] = m
		}
	}

	graph := flows.NewGraph(defs, edges, mods, inters, meta)
	synth := flows.NewSynthesizer(graph, flows.TraceOptions{
		MaxDepth: cfg.Tracing.MaxDepth,
		MaxSteps: cfg.Tracing.MaxSteps,
	}, logger)
	result := synth.Synthesize()

	relinked, err := replaceFlows(st, result.Suggestions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error storing flows: %v\n", err)
		os.Exit(1)
	}

	// Stage 4: process groups.
	report := groups.Compute(mods, inters)

	resp := &BuildResponseCLI{
		Modules: BuildModulesCLI{
			Total:    len(mods),
			Declared: declared,
			TypeOnly: len(typeOnly),
		},
		Interactions: BuildInteractionsCLI{
			Candidates: len(candidates),
			Admitted:   admitted,
			Rejected:   rejected,
			Total:      len(inters),
		},
		Flows: BuildFlowsCLI{
			Traced:           len(result.Suggestions) - result.GapFlows,
			Gap:              result.GapFlows,
			Total:            len(result.Suggestions),
			RelinkedFeatures: relinked,
		},
		Groups:     report,
		Validation: result.Validation,
		DurationMs: time.Since(start).Milliseconds(),
	}
	emit(resp, buildFormat)

	logger.Info("build complete",
		"modules", len(mods),
		"interactions", len(inters),
		"flows", len(result.Suggestions),
		"duration", time.Since(start).Milliseconds(),
	)
}

// applyDeclarations overlays MODULES.toml onto stored modules: name,
// description, and entity overrides, plus domain registration and
// member tagging. Returns how many declarations matched a module.
func applyDeclarations(st *store.Store, repoRoot string) (int, error) {
	decls, err := modules.LoadDeclarations(repoRoot)
	if err != nil {
		return 0, err
	}
	if len(decls) == 0 {
		return 0, nil
	}

	paths := make([]string, 0, len(decls))
	for p := range decls {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	applied := 0
	for _, path := range paths {
		decl := decls[path]
		mod, err := st.GetModuleByPath(path)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // declared but not derived from any file yet
			}
			return applied, err
		}

		decl.Apply(mod)
		if err := st.UpdateModule(mod); err != nil {
			return applied, err
		}
		applied++

		for _, name := range decl.Domains {
			if _, err := st.UpsertDomain(name, ""); err != nil {
				return applied, err
			}
		}
		if len(decl.Domains) > 0 {
			if err := tagMemberDomains(st, mod.ID, decl.Domains[0]); err != nil {
				return applied, err
			}
		}
	}
	return applied, nil
}

// tagMemberDomains sets the manual domain key on member definitions
// that have none. Classifier output stays untouched; the manual key
// simply wins on read.
func tagMemberDomains(st *store.Store, moduleID int64, domain string) error {
	members, err := st.ListMembers(moduleID)
	if err != nil {
		return err
	}
	for _, d := range members {
		m, err := st.GetMetadata(d.ID)
		if err != nil {
			return err
		}
		if m[symbols.MetaDomain] != "" {
			continue
		}
		if err := st.SetMetadata(d.ID, symbols.MetaDomain, domain); err != nil {
			return err
		}
	}
	return nil
}

// fileModuleIndex maps file ids to module ids the same way ingestion
// derived them, for import-edge candidates.
func fileModuleIndex(st *store.Store, prefix string, ignore []string, mods []*modules.Module) (map[int64]int64, error) {
	files, err := st.ListFiles()
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]int64, len(mods))
	for _, m := range mods {
		byPath[m.Path] = m.ID
	}

	index := make(map[int64]int64, len(files))
	for _, f := range files {
		if ingest.Ignored(f.Path, ignore) {
			continue
		}
		if id, ok := byPath[ingest.DeriveModulePath(f.Path, prefix)]; ok {
			index[f.ID] = id
		}
	}
	return index, nil
}

// replaceFlows swaps the stored flow set for freshly synthesized
// suggestions. Features are re-linked to new flows by slug, so a
// rebuild never loses curated feature groupings.
func replaceFlows(st *store.Store, suggestions []flows.FlowSuggestion) (int, error) {
	features, err := st.ListFeatures()
	if err != nil {
		return 0, err
	}
	old, err := st.ListFlows()
	if err != nil {
		return 0, err
	}
	for _, f := range old {
		if err := st.DeleteFlow(f.ID); err != nil {
			return 0, fmt.Errorf("failed to delete flow %q: %w", f.Slug, err)
		}
	}

	idBySlug := make(map[string]int64, len(suggestions))
	for i := range suggestions {
		fl := suggestions[i].Flow
		id, err := st.InsertFlow(&fl)
		if err != nil {
			return 0, fmt.Errorf("failed to insert flow %q: %w", fl.Slug, err)
		}
		if err := st.InsertFlowSteps(id, fl.Steps); err != nil {
			return 0, fmt.Errorf("failed to insert steps of flow %q: %w", fl.Slug, err)
		}
		idBySlug[fl.Slug] = id
	}

	relinked := 0
	for _, feat := range features {
		for _, slug := range feat.FlowSlugs {
			id, ok := idBySlug[slug]
			if !ok {
				continue // flow no longer synthesized under this slug
			}
			if err := st.LinkFeatureFlow(feat.ID, id); err != nil {
				return relinked, err
			}
			relinked++
		}
	}
	return relinked, nil
}
