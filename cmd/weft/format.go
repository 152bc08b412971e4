package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"weft/internal/verify"
)

// OutputFormat selects how command responses are rendered.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse renders a response in the requested format.
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// emit renders and prints a response. Formatting failures go to stderr
// and exit nonzero like any other command failure.
func emit(resp any, format string) {
	out, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func formatJSON(resp any) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *StatusResponseCLI:
		return formatStatusHuman(v)
	case *IngestResponseCLI:
		return formatIngestHuman(v)
	case *BuildResponseCLI:
		return formatBuildHuman(v)
	case *VerifyResponseCLI:
		return formatVerifyHuman(v)
	case *InteractionListResponseCLI:
		return formatInteractionsHuman(v)
	case *InferResponseCLI:
		return formatInferHuman(v)
	case *FlowListResponseCLI:
		return formatFlowListHuman(v)
	case *FlowShowResponseCLI:
		return formatFlowShowHuman(v)
	case *FlowValidateResponseCLI:
		return formatFlowValidateHuman(v)
	case *GroupsResponseCLI:
		return formatGroupsHuman(v)
	case *AnnotateResponseCLI:
		return formatAnnotateHuman(v)
	case *DomainListResponseCLI:
		return formatDomainsHuman(v)
	case *ExportResponseCLI:
		return formatExportHuman(v)
	default:
		// For unknown types, fall back to JSON.
		return formatJSON(resp)
	}
}

func formatStatusHuman(resp *StatusResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Weft Status - v%s\n", resp.WeftVersion))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Database: %s\n\n", resp.DBPath))

	s := resp.Stats
	b.WriteString("Facts:\n")
	b.WriteString(fmt.Sprintf("  Files:        %d\n", s.Files))
	b.WriteString(fmt.Sprintf("  Definitions:  %d\n", s.Definitions))
	b.WriteString(fmt.Sprintf("  Call edges:   %d\n", s.CallEdges))
	b.WriteString(fmt.Sprintf("  Import edges: %d\n", s.ImportEdges))
	b.WriteString(fmt.Sprintf("  Metadata:     %d\n", s.Metadata))
	b.WriteString("\nModel:\n")
	b.WriteString(fmt.Sprintf("  Modules:      %d (%d members)\n", s.Modules, s.Members))
	b.WriteString(fmt.Sprintf("  Interactions: %d\n", s.Interactions))
	b.WriteString(fmt.Sprintf("  Flows:        %d (%d steps)\n", s.Flows, s.FlowSteps))
	b.WriteString(fmt.Sprintf("  Features:     %d\n", s.Features))
	b.WriteString(fmt.Sprintf("  Domains:      %d\n", s.Domains))

	if len(resp.Coverage) > 0 {
		b.WriteString("\nAspect coverage:\n")
		for _, c := range resp.Coverage {
			b.WriteString(fmt.Sprintf("  %-10s %5.1f%% (%d/%d)\n",
				c.Aspect, c.Percent, c.Covered, c.Total))
		}
	}

	if resp.LastExport != "" {
		b.WriteString(fmt.Sprintf("\nLast export: %s\n", resp.LastExport))
	}

	return b.String(), nil
}

func formatIngestHuman(resp *IngestResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Ingest complete\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Source: %s\n\n", resp.Source))

	r := resp.Result
	b.WriteString(fmt.Sprintf("  Files:        %d", r.Files))
	if r.SkippedFiles > 0 {
		b.WriteString(fmt.Sprintf(" (%d skipped)", r.SkippedFiles))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Definitions:  %d\n", r.Definitions))
	b.WriteString(fmt.Sprintf("  Call edges:   %d\n", r.CallEdges))
	b.WriteString(fmt.Sprintf("  Import edges: %d\n", r.ImportEdges))
	b.WriteString(fmt.Sprintf("  Modules:      %d (%d definitions assigned)\n", r.Modules, r.Assigned))

	b.WriteString("\nNext: run 'weft build' to derive interactions and flows.\n")

	return b.String(), nil
}

func formatBuildHuman(resp *BuildResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Build complete\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	m := resp.Modules
	b.WriteString(fmt.Sprintf("Modules:      %d total", m.Total))
	if m.Declared > 0 {
		b.WriteString(fmt.Sprintf(", %d declared", m.Declared))
	}
	if m.TypeOnly > 0 {
		b.WriteString(fmt.Sprintf(", %d type-only", m.TypeOnly))
	}
	b.WriteString("\n")

	in := resp.Interactions
	b.WriteString(fmt.Sprintf("Interactions: %d candidates, %d admitted, %d total\n",
		in.Candidates, in.Admitted, in.Total))
	if len(in.Rejected) > 0 {
		reasons := make([]string, 0, len(in.Rejected))
		for r := range in.Rejected {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			b.WriteString(fmt.Sprintf("  rejected %-18s %d\n", r+":", in.Rejected[r]))
		}
	}

	f := resp.Flows
	b.WriteString(fmt.Sprintf("Flows:        %d traced + %d gap = %d", f.Traced, f.Gap, f.Total))
	if f.RelinkedFeatures > 0 {
		b.WriteString(fmt.Sprintf(" (%d feature links restored)", f.RelinkedFeatures))
	}
	b.WriteString("\n")

	if g := resp.Groups; g != nil {
		b.WriteString(fmt.Sprintf("Groups:       %d major, %d isolated\n",
			len(g.Major), len(g.Isolated)))
	}

	b.WriteString("\n")
	if resp.Validation.Valid {
		b.WriteString("✓ flow validation passed\n")
	} else {
		b.WriteString(fmt.Sprintf("✗ flow validation found %d problems:\n", len(resp.Validation.Errors)))
		for _, e := range resp.Validation.Errors {
			b.WriteString(fmt.Sprintf("  - %s\n", e.Error()))
		}
	}

	return b.String(), nil
}

func formatVerifyHuman(resp *VerifyResponseCLI) (string, error) {
	var b strings.Builder

	r := resp.Result
	if r.Passed {
		b.WriteString("Verification passed ✓\n")
	} else {
		b.WriteString("Verification failed ✗\n")
	}
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	st := r.Stats
	b.WriteString(fmt.Sprintf("Checked: %d modules, %d interactions, %d flows, %d steps, %d members\n",
		st.ModulesChecked, st.InteractionsChecked, st.FlowsChecked,
		st.StepsChecked, st.MembersChecked))

	if len(r.Issues) > 0 {
		b.WriteString(fmt.Sprintf("\nIssues (%d):\n", len(r.Issues)))
		for _, issue := range r.Issues {
			icon := "⚠"
			if issue.Severity == verify.SeverityError {
				icon = "✗"
			}
			b.WriteString(fmt.Sprintf("  %s [%s] %s\n", icon, issue.Category, issue.Message))
		}
	}

	if rep := resp.Repair; rep != nil {
		b.WriteString("\n")
		if rep.DryRun {
			b.WriteString(fmt.Sprintf("Repair (dry-run): %d fixes planned, %d skipped\n",
				rep.Applied, rep.Skipped))
		} else {
			b.WriteString(fmt.Sprintf("Repair: %d fixes applied, %d skipped\n",
				rep.Applied, rep.Skipped))
		}
		for _, fix := range rep.Fixes {
			b.WriteString(fmt.Sprintf("  - %s\n", fix.Message))
		}
	}

	return b.String(), nil
}

func formatInteractionsHuman(resp *InteractionListResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Interactions (%d)\n", resp.Total))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, in := range resp.Interactions {
		b.WriteString(fmt.Sprintf("  [%d] %s -> %s (%s, weight %d, %s)\n",
			in.ID, in.From, in.To, in.Direction, in.Weight, in.Source))
		if in.Semantic != "" {
			b.WriteString(fmt.Sprintf("      %s\n", in.Semantic))
		}
		if len(in.Symbols) > 0 {
			b.WriteString(fmt.Sprintf("      symbols: %s\n", strings.Join(in.Symbols, ", ")))
		}
	}

	return b.String(), nil
}

func formatInferHuman(resp *InferResponseCLI) (string, error) {
	var b strings.Builder

	if resp.Admitted {
		b.WriteString(fmt.Sprintf("✓ recorded %s -> %s (interaction %d)\n",
			resp.From, resp.To, resp.InteractionID))
	} else {
		b.WriteString(fmt.Sprintf("✗ rejected %s -> %s: %s\n",
			resp.From, resp.To, resp.Reason))
	}

	return b.String(), nil
}

func formatFlowListHuman(resp *FlowListResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Flows (%d)\n", resp.Total))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, f := range resp.Flows {
		b.WriteString(fmt.Sprintf("  [%-7s] %s: %s (%d steps, %s",
			f.Tier, f.Slug, f.Name, f.Steps, f.Stakeholder))
		if f.Domain != "" {
			b.WriteString(", " + f.Domain)
		}
		b.WriteString(")\n")
		if len(f.Subflows) > 0 {
			b.WriteString(fmt.Sprintf("      subflows: %s\n", strings.Join(f.Subflows, ", ")))
		}
	}

	return b.String(), nil
}

func formatFlowShowHuman(resp *FlowShowResponseCLI) (string, error) {
	var b strings.Builder

	f := resp.Flow
	b.WriteString(fmt.Sprintf("Flow: %s (%s)\n", f.Name, f.Slug))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Tier:        %s\n", f.Tier))
	b.WriteString(fmt.Sprintf("Stakeholder: %s\n", f.Stakeholder))
	if f.Domain != "" {
		b.WriteString(fmt.Sprintf("Domain:      %s\n", f.Domain))
	}
	if resp.Entry != "" {
		b.WriteString(fmt.Sprintf("Entry:       %s (%s)\n", resp.Entry, resp.EntryModule))
	}

	if len(resp.Steps) > 0 {
		b.WriteString("\nSteps:\n")
		for _, s := range resp.Steps {
			b.WriteString(fmt.Sprintf("  %d. %s -> %s", s.Seq, s.From, s.To))
			if s.FromSymbol != "" && s.ToSymbol != "" {
				b.WriteString(fmt.Sprintf("  (%s -> %s)", s.FromSymbol, s.ToSymbol))
			}
			b.WriteString("\n")
		}
	}

	if len(f.Subflows) > 0 {
		b.WriteString(fmt.Sprintf("\nSubflows: %s\n", strings.Join(f.Subflows, ", ")))
	}

	return b.String(), nil
}

func formatFlowValidateHuman(resp *FlowValidateResponseCLI) (string, error) {
	var b strings.Builder

	if resp.Valid {
		b.WriteString(fmt.Sprintf("✓ %d flows valid\n", resp.Checked))
		return b.String(), nil
	}

	b.WriteString(fmt.Sprintf("✗ %d problems in %d flows:\n", len(resp.Errors), resp.Checked))
	for _, e := range resp.Errors {
		b.WriteString(fmt.Sprintf("  - %s\n", e.Error()))
	}

	return b.String(), nil
}

func formatGroupsHuman(resp *GroupsResponseCLI) (string, error) {
	var b strings.Builder

	r := resp.Report
	b.WriteString(fmt.Sprintf("Process groups (%d modules)\n", r.TotalModules))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if len(r.Major) > 0 {
		b.WriteString(fmt.Sprintf("Major groups (%d):\n", len(r.Major)))
		for _, g := range r.Major {
			b.WriteString(fmt.Sprintf("  %s (%d modules)\n", g.Label, g.Size))
			for _, p := range g.ModulePaths {
				b.WriteString(fmt.Sprintf("    - %s\n", p))
			}
		}
	}

	if len(r.Isolated) > 0 {
		b.WriteString(fmt.Sprintf("\nIsolated modules (%d):\n", len(r.Isolated)))
		for _, g := range r.Isolated {
			b.WriteString(fmt.Sprintf("  - %s\n", g.Label))
		}
	}

	return b.String(), nil
}

func formatAnnotateHuman(resp *AnnotateResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Annotation run complete\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	s := resp.Summary
	b.WriteString(fmt.Sprintf("Classifier: %s (%s)\n", resp.Provider, resp.Model))
	b.WriteString(fmt.Sprintf("Annotated:  %d values in %d iterations\n",
		s.Annotated, len(s.Iterations)))
	if s.Exhausted > 0 {
		b.WriteString(fmt.Sprintf("Exhausted:  %d symbol/aspect pairs gave up after repeated failures\n",
			s.Exhausted))
	}
	if s.Converged {
		b.WriteString("Converged:  ✓ full coverage reached\n")
	} else {
		b.WriteString("Converged:  ✗ coverage incomplete, rerun to continue\n")
	}

	if len(s.Coverage) > 0 {
		b.WriteString("\nCoverage:\n")
		for _, c := range s.Coverage {
			b.WriteString(fmt.Sprintf("  %-10s %5.1f%% (%d/%d)\n",
				c.Aspect, c.Percent, c.Covered, c.Total))
		}
	}

	if s.DryRun {
		b.WriteString("\n(dry-run: nothing was written)\n")
	}

	return b.String(), nil
}

func formatDomainsHuman(resp *DomainListResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Domains (%d)\n", resp.Total))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, d := range resp.Domains {
		icon := "✓"
		note := d.Description
		if !d.Registered {
			icon = "⚠"
			note = "(in use but unregistered)"
		}
		b.WriteString(fmt.Sprintf("  %s %-16s %4d refs  %s\n", icon, d.Name, d.References, note))
	}

	return b.String(), nil
}

func formatExportHuman(resp *ExportResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Snapshot exported\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("ID:   %s\n", resp.ID))
	b.WriteString(fmt.Sprintf("Path: %s\n", resp.Path))
	ratio := 0.0
	if resp.RawBytes > 0 {
		ratio = float64(resp.CompressedBytes) / float64(resp.RawBytes) * 100
	}
	b.WriteString(fmt.Sprintf("Size: %s raw, %s compressed (%.1f%%)\n",
		formatBytes(resp.RawBytes), formatBytes(resp.CompressedBytes), ratio))
	if s := resp.Stats; s != nil {
		b.WriteString(fmt.Sprintf("\nContents: %d modules, %d interactions, %d flows, %d domains\n",
			s.Modules, s.Interactions, s.Flows, s.Domains))
	}

	return b.String(), nil
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
