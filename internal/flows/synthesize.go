package flows

import (
	"errors"
	"log/slog"
	"sort"
)

// FlowSuggestion is one proposed flow produced by synthesis, ready to
// persist. Pure data; the caller decides whether to write it.
type FlowSuggestion struct {
	Flow      Flow   `json:"flow"`
	EntryName string `json:"entryName,omitempty"`
	// MissingInteractions counts cross-module edges the trace saw that
	// had no recorded interaction.
	MissingInteractions int `json:"missingInteractions,omitempty"`
}

// SynthesisResult is the outcome of a full synthesis pass.
type SynthesisResult struct {
	Suggestions []FlowSuggestion     `json:"suggestions"`
	Validation  FlowValidationResult `json:"validation"`
	// TracedCoverage counts interactions reached by traced flows;
	// GapFlows covers the remainder, so total coverage is complete.
	InteractionsTotal int `json:"interactionsTotal"`
	TracedCoverage    int `json:"tracedCoverage"`
	GapFlows          int `json:"gapFlows"`
}

// Synthesizer turns traces into flow suggestions and backfills gap
// flows until every interaction is covered.
type Synthesizer struct {
	graph  *Graph
	tracer *Tracer
	logger *slog.Logger
}

// NewSynthesizer builds a synthesizer over an assembled graph.
func NewSynthesizer(g *Graph, opts TraceOptions, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		graph:  g,
		tracer: NewTracer(g, opts, logger),
		logger: logger,
	}
}

// Synthesize traces every entry candidate, then emits one gap flow per
// source module for interactions no trace reached. Depth violations
// are collected as validation errors without aborting the pass.
//
// Post-condition: every recorded interaction appears in at least one
// suggestion's steps.
func (s *Synthesizer) Synthesize() *SynthesisResult {
	result := &SynthesisResult{
		Validation: FlowValidationResult{Valid: true},
	}

	takenSlugs := make(map[string]bool)
	covered := make(map[int64]bool)

	for _, cand := range s.graph.EntryCandidates() {
		def := cand.Definition
		trace, err := s.tracer.Trace(def.ID)
		if err != nil {
			slug := Slugify(HumanizeSymbol(def.Name))
			if errors.Is(err, ErrDepthExceeded) {
				result.Validation.addError(slug, "depth", "%v", err)
			} else {
				result.Validation.addError(slug, "trace", "%v", err)
			}
			continue
		}
		if len(trace.Steps) == 0 {
			// Entry never leaves its module; nothing to narrate.
			continue
		}

		name := HumanizeSymbol(def.Name)
		suggestion := FlowSuggestion{
			EntryName:           def.Name,
			MissingInteractions: trace.MissingInteractions,
			Flow: Flow{
				Name:              name,
				Slug:              UniqueSlug(Slugify(name), takenSlugs),
				Depth:             0,
				Domain:            s.domainOf(def.ID),
				Stakeholder:       StakeholderUser,
				EntryDefinitionID: def.ID,
				EntryModuleID:     trace.EntryModuleID,
				Tier:              traceTier(cand, trace),
				Steps:             trace.Steps,
			},
		}
		for _, step := range trace.Steps {
			covered[step.InteractionID] = true
		}
		result.Suggestions = append(result.Suggestions, suggestion)
	}

	result.TracedCoverage = len(covered)
	result.InteractionsTotal = len(s.graph.inters)

	gaps := s.synthesizeGaps(covered, takenSlugs)
	result.GapFlows = len(gaps)
	result.Suggestions = append(result.Suggestions, gaps...)

	if s.logger != nil {
		s.logger.Info("flow synthesis complete",
			"traced", len(result.Suggestions)-len(gaps),
			"gapFlows", len(gaps),
			"interactions", result.InteractionsTotal,
			"validationErrors", len(result.Validation.Errors))
	}
	return result
}

// traceTier ranks a traced flow. Annotated entries with every
// cross-module edge accounted for rank highest; fallback entries and
// traces with unrecorded interactions are medium confidence.
func traceTier(cand EntryCandidate, trace *Trace) int {
	if cand.Annotated && trace.MissingInteractions == 0 {
		return TierFull
	}
	return TierPartial
}

// synthesizeGaps partitions uncovered interactions by source module and
// emits one developer-facing internal flow per module. Steps carry the
// interaction only; there is no definition-level evidence to attach.
func (s *Synthesizer) synthesizeGaps(covered map[int64]bool, takenSlugs map[string]bool) []FlowSuggestion {
	bySource := make(map[int64][]int64)
	for _, in := range s.graph.Interactions() {
		if covered[in.ID] {
			continue
		}
		bySource[in.FromModuleID] = append(bySource[in.FromModuleID], in.ID)
	}

	moduleIDs := make([]int64, 0, len(bySource))
	for id := range bySource {
		moduleIDs = append(moduleIDs, id)
	}
	sort.Slice(moduleIDs, func(i, j int) bool {
		mi, mj := s.graph.Module(moduleIDs[i]), s.graph.Module(moduleIDs[j])
		if mi != nil && mj != nil {
			return mi.Path < mj.Path
		}
		return moduleIDs[i] < moduleIDs[j]
	})

	var gaps []FlowSuggestion
	for _, moduleID := range moduleIDs {
		mod := s.graph.Module(moduleID)
		if mod == nil {
			// Ghost source module; the verifier owns this case. The
			// interactions stay uncovered rather than invent a flow
			// for a module that no longer exists.
			continue
		}

		interactionIDs := bySource[moduleID]
		sort.Slice(interactionIDs, func(i, j int) bool {
			return interactionIDs[i] < interactionIDs[j]
		})

		steps := make([]Step, len(interactionIDs))
		for i, id := range interactionIDs {
			steps[i] = Step{Seq: i, InteractionID: id}
		}

		gaps = append(gaps, FlowSuggestion{
			Flow: Flow{
				Name:          GapFlowName(mod),
				Slug:          UniqueSlug(GapFlowSlug(mod), takenSlugs),
				Depth:         0,
				Stakeholder:   StakeholderDeveloper,
				EntryModuleID: mod.ID,
				Tier:          TierGap,
				Steps:         steps,
			},
		})
	}
	return gaps
}

// domainOf reads the entry definition's domain tag, if annotated.
func (s *Synthesizer) domainOf(defID int64) string {
	m := s.graph.metadataOf(defID)
	if m == nil {
		return ""
	}
	return m.Domain()
}

// UncoveredInteractions lists interaction ids that appear in none of
// the given flows' steps, ordered ascending. Empty after a synthesis
// pass that included gap flows.
func UncoveredInteractions(all []int64, fls []Flow) []int64 {
	covered := make(map[int64]bool)
	for _, f := range fls {
		for _, st := range f.Steps {
			covered[st.InteractionID] = true
		}
	}
	var missing []int64
	for _, id := range all {
		if !covered[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
