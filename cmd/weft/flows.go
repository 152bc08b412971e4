package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/flows"
)

var flowsFormat string

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Inspect derived business flows",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all flows with their tier and step counts",
	Args:  cobra.NoArgs,
	Run:   runFlowsList,
}

var flowsShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show one flow with its steps resolved to modules and symbols",
	Args:  cobra.ExactArgs(1),
	Run:   runFlowsShow,
}

var flowsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the stored flow set for structural problems",
	Long: `Validate every stored flow: slugs must be unique and non-empty,
parent references must resolve without cycles, and depths must stay
within the configured bound and match the parent chain.

All problems are reported at once; the command exits nonzero when any
are found.`,
	Args: cobra.NoArgs,
	Run:  runFlowsValidate,
}

func init() {
	flowsCmd.PersistentFlags().StringVar(&flowsFormat, "format", "json", "Output format (json, human)")
	flowsCmd.AddCommand(flowsListCmd)
	flowsCmd.AddCommand(flowsShowCmd)
	flowsCmd.AddCommand(flowsValidateCmd)
	rootCmd.AddCommand(flowsCmd)
}

// FlowSummaryCLI is one flow in list output.
type FlowSummaryCLI struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Tier        string   `json:"tier"`
	Stakeholder string   `json:"stakeholder"`
	Domain      string   `json:"domain,omitempty"`
	Steps       int      `json:"steps"`
	Subflows    []string `json:"subflows,omitempty"`
}

type FlowListResponseCLI struct {
	Flows []FlowSummaryCLI `json:"flows"`
	Total int              `json:"total"`
}

// FlowStepCLI is one step with modules and symbols resolved.
type FlowStepCLI struct {
	Seq           int    `json:"seq"`
	From          string `json:"from"`
	To            string `json:"to"`
	FromSymbol    string `json:"fromSymbol,omitempty"`
	ToSymbol      string `json:"toSymbol,omitempty"`
	InteractionID int64  `json:"interactionId"`
}

type FlowShowResponseCLI struct {
	Flow        FlowSummaryCLI `json:"flow"`
	Entry       string         `json:"entry,omitempty"`
	EntryModule string         `json:"entryModule,omitempty"`
	Steps       []FlowStepCLI  `json:"steps"`
}

type FlowValidateResponseCLI struct {
	Checked int               `json:"checked"`
	Valid   bool              `json:"valid"`
	Errors  []flows.FlowError `json:"errors,omitempty"`
}

func tierLabel(tier int) string {
	switch tier {
	case flows.TierFull:
		return "full"
	case flows.TierPartial:
		return "partial"
	default:
		return "gap"
	}
}

func flowSummary(f flows.Flow) FlowSummaryCLI {
	return FlowSummaryCLI{
		Slug:        f.Slug,
		Name:        f.Name,
		Tier:        tierLabel(f.Tier),
		Stakeholder: f.Stakeholder,
		Domain:      f.Domain,
		Steps:       len(f.Steps),
		Subflows:    f.SubflowSlugs,
	}
}

func runFlowsList(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	list, err := st.ListFlows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing flows: %v\n", err)
		os.Exit(1)
	}
	for i := range list {
		steps, err := st.ListFlowSteps(list[i].ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing flow steps: %v\n", err)
			os.Exit(1)
		}
		list[i].Steps = steps
	}
	flows.AttachSubflowSlugs(list)

	resp := &FlowListResponseCLI{Total: len(list)}
	for _, f := range list {
		resp.Flows = append(resp.Flows, flowSummary(f))
	}
	emit(resp, flowsFormat)
}

func runFlowsShow(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	f, err := st.GetFlowBySlug(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	all, err := st.ListFlows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing flows: %v\n", err)
		os.Exit(1)
	}
	flows.AttachSubflowSlugs(all)
	for _, candidate := range all {
		if candidate.ID == f.ID {
			f.SubflowSlugs = candidate.SubflowSlugs
			break
		}
	}

	mods, err := st.ListModules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing modules: %v\n", err)
		os.Exit(1)
	}
	paths := modulePathIndex(mods)

	resp := &FlowShowResponseCLI{Flow: flowSummary(*f)}
	if f.EntryDefinitionID != 0 {
		if d, err := st.GetDefinitionByID(f.EntryDefinitionID); err == nil {
			resp.Entry = d.Name
		}
		resp.EntryModule = paths[f.EntryModuleID]
	}

	for _, s := range f.Steps {
		step := FlowStepCLI{Seq: s.Seq, InteractionID: s.InteractionID}
		if in, err := st.GetInteractionByID(s.InteractionID); err == nil {
			step.From = paths[in.FromModuleID]
			step.To = paths[in.ToModuleID]
		}
		if s.HasDefinitionEvidence() {
			if d, err := st.GetDefinitionByID(s.FromDefinitionID); err == nil {
				step.FromSymbol = d.Name
			}
			if d, err := st.GetDefinitionByID(s.ToDefinitionID); err == nil {
				step.ToSymbol = d.Name
			}
		}
		resp.Steps = append(resp.Steps, step)
	}
	emit(resp, flowsFormat)
}

func runFlowsValidate(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, cfg := mustGetStore(repoRoot, logger)
	defer st.Close()

	list, err := st.ListFlows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing flows: %v\n", err)
		os.Exit(1)
	}

	result := flows.ValidateFlows(list, cfg.Tracing.MaxDepth)
	resp := &FlowValidateResponseCLI{
		Checked: len(list),
		Valid:   result.Valid,
		Errors:  result.Errors,
	}
	emit(resp, flowsFormat)

	if !result.Valid {
		os.Exit(1)
	}
}
