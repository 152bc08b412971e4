// Package verify scans the derived graph for referential ghosts and
// low-quality interactions. Verification is read-only; every finding
// that can be repaired mechanically carries a fix descriptor the
// repairer applies on explicit request.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"weft/internal/flows"
	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/store"
	"weft/internal/symbols"
)

// Severity levels. Only error-severity issues fail verification.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue categories.
const (
	CategoryReferential = "referential"
	CategoryQuality     = "quality"
)

// FixAction names one of the fixed repair actions.
type FixAction string

const (
	FixRemoveGhost            FixAction = "remove-ghost"
	FixRemoveInteraction      FixAction = "remove-interaction"
	FixRebuildSymbols         FixAction = "rebuild-symbols"
	FixSetDirectionUni        FixAction = "set-direction-uni"
	FixRemoveInferredToModule FixAction = "remove-inferred-to-module"
)

// FixData is a machine-actionable repair descriptor.
type FixData struct {
	Action FixAction `json:"action"`
	Table  string    `json:"table,omitempty"`
	RowID  int64     `json:"rowId,omitempty"`
	// Symbols carries the rebuilt evidence list for rebuild-symbols.
	Symbols []string `json:"symbols,omitempty"`
}

// Issue is one verification finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Table    string   `json:"table,omitempty"`
	RowID    int64    `json:"rowId,omitempty"`
	FixData  *FixData `json:"fixData,omitempty"`
}

// Stats summarizes a verification pass.
type Stats struct {
	ModulesChecked      int `json:"modulesChecked"`
	InteractionsChecked int `json:"interactionsChecked"`
	FlowsChecked        int `json:"flowsChecked"`
	StepsChecked        int `json:"stepsChecked"`
	MembersChecked      int `json:"membersChecked"`
	StructuralIssues    int `json:"structuralIssues"`
	QualityIssues       int `json:"qualityIssues"`
}

// VerificationResult is the full outcome. Passed is false only when an
// error-severity issue exists; warnings and info are surfaced but never
// fail the pass.
type VerificationResult struct {
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues"`
	Stats  Stats   `json:"stats"`
}

// Store is the slice of the fact store verification reads.
type Store interface {
	ListModules() ([]*modules.Module, error)
	ListDefinitions() ([]symbols.Definition, error)
	ListCallEdges() ([]symbols.Edge, error)
	ListInteractions() ([]interactions.Interaction, error)
	ListFlows() ([]flows.Flow, error)
	ListAllFlowSteps() ([]flows.Step, error)
	ListAllMembers() ([]store.ModuleMember, error)
	TypeOnlyModuleIDs() (map[int64]bool, error)
}

// Verifier runs integrity checks over the whole derived graph.
type Verifier struct {
	store  Store
	logger *slog.Logger
}

// New builds a verifier.
func New(st Store, logger *slog.Logger) *Verifier {
	return &Verifier{store: st, logger: logger}
}

// snapshot holds one consistent read of everything the checks need.
type snapshot struct {
	modules      []*modules.Module
	moduleIDs    map[int64]bool
	defs         map[int64]symbols.Definition
	members      []store.ModuleMember
	interactions []interactions.Interaction
	interIDs     map[int64]bool
	flows        []flows.Flow
	flowIDs      map[int64]bool
	steps        []flows.Step
	typeOnly     map[int64]bool
	// callPairs[from][to] lists definition names evidencing calls from
	// module `from` into module `to`.
	callPairs map[int64]map[int64][]string
}

// Verify scans the derived graph and reports every problem found. It
// performs no writes.
func (v *Verifier) Verify(ctx context.Context) (*VerificationResult, error) {
	snap, err := v.load(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		Stats: Stats{
			ModulesChecked:      len(snap.modules),
			InteractionsChecked: len(snap.interactions),
			FlowsChecked:        len(snap.flows),
			StepsChecked:        len(snap.steps),
			MembersChecked:      len(snap.members),
		},
	}

	ghostInters := v.checkGhostInteractions(snap, result)
	v.checkGhostSteps(snap, ghostInters, result)
	v.checkGhostMembers(snap, result)
	v.checkFlowReferences(snap, result)
	v.checkInteractionQuality(snap, result)

	for _, issue := range result.Issues {
		switch issue.Category {
		case CategoryReferential:
			result.Stats.StructuralIssues++
		case CategoryQuality:
			result.Stats.QualityIssues++
		}
	}

	result.Passed = true
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			result.Passed = false
			break
		}
	}

	if v.logger != nil {
		v.logger.Info("verification complete",
			"passed", result.Passed,
			"issues", len(result.Issues),
			"structural", result.Stats.StructuralIssues,
			"quality", result.Stats.QualityIssues)
	}
	return result, nil
}

func (v *Verifier) load(ctx context.Context) (*snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &snapshot{
		moduleIDs: make(map[int64]bool),
		defs:      make(map[int64]symbols.Definition),
		interIDs:  make(map[int64]bool),
		flowIDs:   make(map[int64]bool),
		callPairs: make(map[int64]map[int64][]string),
	}

	var err error
	if snap.modules, err = v.store.ListModules(); err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	for _, m := range snap.modules {
		snap.moduleIDs[m.ID] = true
	}

	defs, err := v.store.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	for _, d := range defs {
		snap.defs[d.ID] = d
	}

	if snap.members, err = v.store.ListAllMembers(); err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	if snap.interactions, err = v.store.ListInteractions(); err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	for _, in := range snap.interactions {
		snap.interIDs[in.ID] = true
	}
	if snap.flows, err = v.store.ListFlows(); err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}
	for _, f := range snap.flows {
		snap.flowIDs[f.ID] = true
	}
	if snap.steps, err = v.store.ListAllFlowSteps(); err != nil {
		return nil, fmt.Errorf("failed to load flow steps: %w", err)
	}
	if snap.typeOnly, err = v.store.TypeOnlyModuleIDs(); err != nil {
		return nil, fmt.Errorf("failed to load type-only modules: %w", err)
	}

	edges, err := v.store.ListCallEdges()
	if err != nil {
		return nil, fmt.Errorf("failed to load call edges: %w", err)
	}
	for _, e := range edges {
		from, okFrom := snap.defs[e.FromID]
		to, okTo := snap.defs[e.ToID]
		if !okFrom || !okTo || from.ModuleID == 0 || to.ModuleID == 0 || from.ModuleID == to.ModuleID {
			continue
		}
		inner := snap.callPairs[from.ModuleID]
		if inner == nil {
			inner = make(map[int64][]string)
			snap.callPairs[from.ModuleID] = inner
		}
		inner[to.ModuleID] = append(inner[to.ModuleID], from.Name, to.Name)
	}

	return snap, nil
}

// checkGhostInteractions finds interactions referencing deleted
// modules and returns their ids so the step check can flag steps that
// depend on them transitively.
func (v *Verifier) checkGhostInteractions(snap *snapshot, result *VerificationResult) map[int64]bool {
	ghosts := make(map[int64]bool)
	for _, in := range snap.interactions {
		var missing []int64
		if !snap.moduleIDs[in.FromModuleID] {
			missing = append(missing, in.FromModuleID)
		}
		if !snap.moduleIDs[in.ToModuleID] {
			missing = append(missing, in.ToModuleID)
		}
		if len(missing) == 0 {
			continue
		}
		ghosts[in.ID] = true
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityError,
			Category: CategoryReferential,
			Message: fmt.Sprintf("interaction %d references missing module(s) %v",
				in.ID, missing),
			Table: "interactions",
			RowID: in.ID,
			FixData: &FixData{
				Action: FixRemoveGhost,
				Table:  "interactions",
				RowID:  in.ID,
			},
		})
	}
	return ghosts
}

// checkGhostSteps finds flow steps referencing deleted flows,
// interactions, or definitions. Steps whose interaction is itself a
// ghost are flagged in the same pass so one repair run clears the
// whole chain.
func (v *Verifier) checkGhostSteps(snap *snapshot, ghostInters map[int64]bool, result *VerificationResult) {
	for _, st := range snap.steps {
		var reason string
		switch {
		case !snap.flowIDs[st.FlowID]:
			reason = fmt.Sprintf("missing flow %d", st.FlowID)
		case !snap.interIDs[st.InteractionID]:
			reason = fmt.Sprintf("missing interaction %d", st.InteractionID)
		case ghostInters[st.InteractionID]:
			reason = fmt.Sprintf("ghost interaction %d", st.InteractionID)
		case st.FromDefinitionID != 0 && !defExists(snap, st.FromDefinitionID):
			reason = fmt.Sprintf("missing definition %d", st.FromDefinitionID)
		case st.ToDefinitionID != 0 && !defExists(snap, st.ToDefinitionID):
			reason = fmt.Sprintf("missing definition %d", st.ToDefinitionID)
		default:
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityError,
			Category: CategoryReferential,
			Message:  fmt.Sprintf("flow step %d references %s", st.ID, reason),
			Table:    "flow_steps",
			RowID:    st.ID,
			FixData: &FixData{
				Action: FixRemoveGhost,
				Table:  "flow_steps",
				RowID:  st.ID,
			},
		})
	}
}

// checkGhostMembers finds membership rows referencing deleted modules
// or definitions.
func (v *Verifier) checkGhostMembers(snap *snapshot, result *VerificationResult) {
	for _, m := range snap.members {
		var reason string
		switch {
		case !snap.moduleIDs[m.ModuleID]:
			reason = fmt.Sprintf("missing module %d", m.ModuleID)
		case !defExists(snap, m.DefinitionID):
			reason = fmt.Sprintf("missing definition %d", m.DefinitionID)
		default:
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityError,
			Category: CategoryReferential,
			Message:  fmt.Sprintf("module member %d references %s", m.ID, reason),
			Table:    "module_members",
			RowID:    m.ID,
			FixData: &FixData{
				Action: FixRemoveGhost,
				Table:  "module_members",
				RowID:  m.ID,
			},
		})
	}
}

// checkFlowReferences surfaces flows whose entry points or parents no
// longer resolve. The flow itself stays useful, so these are warnings
// without automatic fixes.
func (v *Verifier) checkFlowReferences(snap *snapshot, result *VerificationResult) {
	for _, f := range snap.flows {
		if f.EntryDefinitionID != 0 && !defExists(snap, f.EntryDefinitionID) {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryReferential,
				Message: fmt.Sprintf("flow %q entry definition %d no longer exists",
					f.Slug, f.EntryDefinitionID),
				Table: "flows",
				RowID: f.ID,
			})
		}
		if f.ParentID != 0 && !snap.flowIDs[f.ParentID] {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryReferential,
				Message: fmt.Sprintf("flow %q references missing parent flow %d",
					f.Slug, f.ParentID),
				Table: "flows",
				RowID: f.ID,
			})
		}
	}
}

// checkInteractionQuality applies the evidence rules to non-ghost
// interactions.
func (v *Verifier) checkInteractionQuality(snap *snapshot, result *VerificationResult) {
	for _, in := range snap.interactions {
		if !snap.moduleIDs[in.FromModuleID] || !snap.moduleIDs[in.ToModuleID] {
			continue // ghost, already reported
		}

		if in.Weight < 1 {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryQuality,
				Message: fmt.Sprintf("interaction %d has nonpositive weight %d",
					in.ID, in.Weight),
				Table: "interactions",
				RowID: in.ID,
				FixData: &FixData{
					Action: FixRemoveInteraction,
					Table:  "interactions",
					RowID:  in.ID,
				},
			})
		}

		forward := len(callEvidence(snap, in.FromModuleID, in.ToModuleID)) > 0
		reverse := len(callEvidence(snap, in.ToModuleID, in.FromModuleID)) > 0

		if in.Direction == interactions.DirectionBi && forward != reverse {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryQuality,
				Message: fmt.Sprintf("interaction %d is bidirectional but call evidence exists in one direction only",
					in.ID),
				Table: "interactions",
				RowID: in.ID,
				FixData: &FixData{
					Action: FixSetDirectionUni,
					Table:  "interactions",
					RowID:  in.ID,
				},
			})
		}

		if len(in.Symbols) == 0 && forward {
			names := callEvidence(snap, in.FromModuleID, in.ToModuleID)
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryQuality,
				Message: fmt.Sprintf("interaction %d has no symbol evidence but %d evidencing definitions exist",
					in.ID, len(names)),
				Table: "interactions",
				RowID: in.ID,
				FixData: &FixData{
					Action:  FixRebuildSymbols,
					Table:   "interactions",
					RowID:   in.ID,
					Symbols: names,
				},
			})
		}

		if in.Source == interactions.SourceInferred &&
			(snap.typeOnly[in.FromModuleID] || snap.typeOnly[in.ToModuleID]) {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryQuality,
				Message: fmt.Sprintf("inferred interaction %d touches a type-only module",
					in.ID),
				Table: "interactions",
				RowID: in.ID,
				FixData: &FixData{
					Action: FixRemoveInferredToModule,
					Table:  "interactions",
					RowID:  in.ID,
				},
			})
		}
	}
}

// callEvidence returns the deduplicated, sorted definition names
// evidencing calls from one module into another, capped to keep
// fixData readable.
func callEvidence(snap *snapshot, from, to int64) []string {
	const maxNames = 8
	inner := snap.callPairs[from]
	if inner == nil {
		return nil
	}
	raw := inner[to]
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	var names []string
	for _, n := range raw {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	if len(names) > maxNames {
		names = names[:maxNames]
	}
	return names
}

func defExists(snap *snapshot, id int64) bool {
	_, ok := snap.defs[id]
	return ok
}
