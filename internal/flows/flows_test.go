package flows

import (
	"errors"
	"testing"

	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/symbols"
)

func defn(id, moduleID int64, name string, kind symbols.Kind, exported bool) symbols.Definition {
	return symbols.Definition{
		ID: id, FileID: 1, Name: name, Kind: kind,
		Exported: exported, ModuleID: moduleID,
	}
}

func call(from, to int64) symbols.Edge {
	return symbols.Edge{FromID: from, ToID: to, Kind: symbols.EdgeCall}
}

func inter(id, from, to int64) interactions.Interaction {
	return interactions.Interaction{
		ID: id, FromModuleID: from, ToModuleID: to,
		Direction: interactions.DirectionUni, Weight: 1,
		Source: interactions.SourceAST,
	}
}

func testModules() []*modules.Module {
	return []*modules.Module{
		{ID: 1, Path: "app.api", Name: "api"},
		{ID: 2, Path: "app.core", Name: "core"},
		{ID: 3, Path: "app.billing", Name: "billing"},
	}
}

// checkoutGraph wires HandleCheckout (api) -> processOrder (core) ->
// ChargeCard (billing), with interactions recorded for both crossings.
func checkoutGraph(meta map[int64]symbols.MetadataSet) *Graph {
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(2, 2, "processOrder", symbols.KindFunction, false),
		defn(3, 3, "ChargeCard", symbols.KindFunction, true),
	}
	edges := []symbols.Edge{call(1, 2), call(2, 3)}
	inters := []interactions.Interaction{inter(10, 1, 2), inter(11, 2, 3)}
	return NewGraph(defs, edges, testModules(), inters, meta)
}

func TestTraceCrossModuleSteps(t *testing.T) {
	g := checkoutGraph(nil)
	tr, err := NewTracer(g, TraceOptions{}, nil).Trace(1)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}

	if len(tr.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(tr.Steps))
	}
	if tr.Steps[0].InteractionID != 10 || tr.Steps[1].InteractionID != 11 {
		t.Errorf("unexpected step interactions: %+v", tr.Steps)
	}
	if tr.Steps[0].Seq != 0 || tr.Steps[1].Seq != 1 {
		t.Errorf("sequence not assigned in order: %+v", tr.Steps)
	}
	if !tr.Steps[0].HasDefinitionEvidence() {
		t.Errorf("traced step lost definition evidence: %+v", tr.Steps[0])
	}
	if tr.EntryModuleID != 1 {
		t.Errorf("entry module = %d, want 1", tr.EntryModuleID)
	}
}

func TestTraceStopsAtCycle(t *testing.T) {
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(2, 2, "processOrder", symbols.KindFunction, false),
	}
	// 1 -> 2 -> 1: the revisit ends the branch, not the program.
	edges := []symbols.Edge{call(1, 2), call(2, 1)}
	inters := []interactions.Interaction{inter(10, 1, 2), inter(11, 2, 1)}
	g := NewGraph(defs, edges, testModules(), inters, nil)

	tr, err := NewTracer(g, TraceOptions{}, nil).Trace(1)
	if err != nil {
		t.Fatalf("Trace failed on cycle: %v", err)
	}
	if len(tr.Steps) != 1 {
		t.Errorf("steps = %d, want 1 (cycle branch terminated)", len(tr.Steps))
	}
}

func TestTraceDepthExceeded(t *testing.T) {
	g := checkoutGraph(nil)
	_, err := NewTracer(g, TraceOptions{MaxDepth: 1}, nil).Trace(1)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("error = %v, want ErrDepthExceeded", err)
	}
}

func TestTraceSkipsUsageEdges(t *testing.T) {
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(4, 2, "Order", symbols.KindType, true),
	}
	edges := []symbols.Edge{{FromID: 1, ToID: 4, Kind: symbols.EdgeUse}}
	inters := []interactions.Interaction{inter(10, 1, 2)}
	g := NewGraph(defs, edges, testModules(), inters, nil)

	tr, err := NewTracer(g, TraceOptions{}, nil).Trace(1)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if len(tr.Steps) != 0 {
		t.Errorf("usage edge produced steps: %+v", tr.Steps)
	}
}

func TestTraceSuppressesConsecutivePair(t *testing.T) {
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(2, 2, "processOrder", symbols.KindFunction, false),
		defn(9, 2, "validateOrder", symbols.KindFunction, false),
	}
	// Two immediate api->core crossings; the second adds no narrative.
	edges := []symbols.Edge{call(1, 2), call(1, 9)}
	inters := []interactions.Interaction{inter(10, 1, 2)}
	g := NewGraph(defs, edges, testModules(), inters, nil)

	tr, err := NewTracer(g, TraceOptions{}, nil).Trace(1)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if len(tr.Steps) != 1 {
		t.Errorf("steps = %d, want 1 (consecutive module pair suppressed)", len(tr.Steps))
	}
}

func TestTraceCountsMissingInteractions(t *testing.T) {
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(3, 3, "ChargeCard", symbols.KindFunction, true),
	}
	// api -> billing has no recorded interaction.
	edges := []symbols.Edge{call(1, 3)}
	g := NewGraph(defs, edges, testModules(), nil, nil)

	tr, err := NewTracer(g, TraceOptions{}, nil).Trace(1)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if len(tr.Steps) != 0 || tr.MissingInteractions != 1 {
		t.Errorf("steps=%d missing=%d, want 0 and 1", len(tr.Steps), tr.MissingInteractions)
	}
}

func TestTraceRejectsUnassignedEntry(t *testing.T) {
	defs := []symbols.Definition{defn(1, 0, "Orphan", symbols.KindFunction, true)}
	g := NewGraph(defs, nil, testModules(), nil, nil)
	if _, err := NewTracer(g, TraceOptions{}, nil).Trace(1); err == nil {
		t.Error("unassigned entry accepted")
	}
	if _, err := NewTracer(g, TraceOptions{}, nil).Trace(42); err == nil {
		t.Error("unknown entry accepted")
	}
}

func TestEntryCandidates(t *testing.T) {
	meta := map[int64]symbols.MetadataSet{
		1: {"aspect.role": "entrypoint"},
	}
	g := checkoutGraph(meta)
	cands := g.EntryCandidates()
	if len(cands) != 1 || cands[0].Definition.ID != 1 || !cands[0].Annotated {
		t.Errorf("annotated candidates = %+v", cands)
	}

	// Without annotations, exported callables with no callers stand in.
	g = checkoutGraph(nil)
	cands = g.EntryCandidates()
	if len(cands) != 1 || cands[0].Definition.ID != 1 || cands[0].Annotated {
		t.Errorf("fallback candidates = %+v", cands)
	}
}

func TestSynthesizeCoversEveryInteraction(t *testing.T) {
	meta := map[int64]symbols.MetadataSet{
		1: {"aspect.role": "entrypoint", "aspect.domain": "commerce"},
	}
	defs := []symbols.Definition{
		defn(1, 1, "HandleCheckout", symbols.KindFunction, true),
		defn(2, 2, "processOrder", symbols.KindFunction, false),
		defn(3, 3, "ChargeCard", symbols.KindFunction, true),
	}
	edges := []symbols.Edge{call(1, 2), call(2, 3)}
	// Interaction 12 is recorded but no trace reaches it.
	inters := []interactions.Interaction{inter(10, 1, 2), inter(11, 2, 3), inter(12, 3, 1)}
	g := NewGraph(defs, edges, testModules(), inters, meta)

	result := NewSynthesizer(g, TraceOptions{}, nil).Synthesize()

	if !result.Validation.Valid {
		t.Fatalf("validation errors: %+v", result.Validation.Errors)
	}
	if result.InteractionsTotal != 3 || result.TracedCoverage != 2 || result.GapFlows != 1 {
		t.Errorf("coverage: total=%d traced=%d gaps=%d, want 3/2/1",
			result.InteractionsTotal, result.TracedCoverage, result.GapFlows)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("suggestions = %d, want traced + gap", len(result.Suggestions))
	}

	traced := result.Suggestions[0].Flow
	if traced.Name != "Handle checkout" || traced.Slug != "handle-checkout" {
		t.Errorf("traced flow naming: %q / %q", traced.Name, traced.Slug)
	}
	if traced.Tier != TierFull || traced.Stakeholder != StakeholderUser {
		t.Errorf("traced flow tier=%d stakeholder=%s", traced.Tier, traced.Stakeholder)
	}
	if traced.Domain != "commerce" {
		t.Errorf("traced flow domain = %q, want annotated commerce", traced.Domain)
	}
	if traced.EntryDefinitionID != 1 || traced.EntryModuleID != 1 {
		t.Errorf("traced flow entry: %+v", traced)
	}

	gap := result.Suggestions[1].Flow
	if gap.Tier != TierGap || gap.Stakeholder != StakeholderDeveloper {
		t.Errorf("gap flow tier=%d stakeholder=%s", gap.Tier, gap.Stakeholder)
	}
	if gap.Name != "Internal: billing operations" || gap.Slug != "internal-billing" {
		t.Errorf("gap flow naming: %q / %q", gap.Name, gap.Slug)
	}
	if len(gap.Steps) != 1 || gap.Steps[0].InteractionID != 12 {
		t.Errorf("gap flow steps: %+v", gap.Steps)
	}
	if gap.Steps[0].HasDefinitionEvidence() {
		t.Error("gap step fabricated definition evidence")
	}

	var all []Flow
	for _, s := range result.Suggestions {
		all = append(all, s.Flow)
	}
	if missing := UncoveredInteractions([]int64{10, 11, 12}, all); len(missing) != 0 {
		t.Errorf("interactions uncovered after synthesis: %v", missing)
	}
}

func TestSynthesizeCollectsDepthErrors(t *testing.T) {
	meta := map[int64]symbols.MetadataSet{
		1: {"aspect.role": "entrypoint"},
	}
	g := checkoutGraph(meta)
	result := NewSynthesizer(g, TraceOptions{MaxDepth: 1}, nil).Synthesize()

	if result.Validation.Valid {
		t.Fatal("depth violation not collected")
	}
	found := false
	for _, e := range result.Validation.Errors {
		if e.Field == "depth" {
			found = true
		}
	}
	if !found {
		t.Errorf("no depth error in %+v", result.Validation.Errors)
	}
	// The failed trace produces no suggestion but the pass continues to
	// gap synthesis: both interactions land in gap flows.
	if result.GapFlows == 0 {
		t.Error("gap backfill skipped after trace failure")
	}
}

func TestFallbackEntryIsPartialTier(t *testing.T) {
	g := checkoutGraph(nil)
	result := NewSynthesizer(g, TraceOptions{}, nil).Synthesize()
	if len(result.Suggestions) == 0 {
		t.Fatal("no suggestions")
	}
	if tier := result.Suggestions[0].Flow.Tier; tier != TierPartial {
		t.Errorf("fallback entry tier = %d, want partial", tier)
	}
}

func TestValidateFlows(t *testing.T) {
	valid := []Flow{
		{ID: 1, Slug: "checkout", Tier: TierFull},
		{ID: 2, Slug: "checkout-settle", ParentID: 1, Depth: 1, Tier: TierFull},
	}
	if r := ValidateFlows(valid, 0); !r.Valid {
		t.Errorf("valid set rejected: %+v", r.Errors)
	}

	tests := []struct {
		name  string
		flows []Flow
		field string
	}{
		{
			"duplicate slug",
			[]Flow{{ID: 1, Slug: "x"}, {ID: 2, Slug: "x"}},
			"slug",
		},
		{
			"dangling parent",
			[]Flow{{ID: 1, Slug: "x", ParentID: 99}},
			"parentId",
		},
		{
			"self parent",
			[]Flow{{ID: 1, Slug: "x", ParentID: 1}},
			"parentId",
		},
		{
			"parent cycle",
			[]Flow{
				{ID: 1, Slug: "a", ParentID: 2, Depth: 1},
				{ID: 2, Slug: "b", ParentID: 1, Depth: 1},
			},
			"parentId",
		},
		{
			"depth bound",
			[]Flow{{ID: 1, Slug: "x", Depth: 99}},
			"depth",
		},
		{
			"depth mismatch",
			[]Flow{
				{ID: 1, Slug: "a"},
				{ID: 2, Slug: "b", ParentID: 1, Depth: 3},
			},
			"depth",
		},
		{
			"unknown tier",
			[]Flow{{ID: 1, Slug: "x", Tier: 9}},
			"tier",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateFlows(tt.flows, 0)
			if r.Valid {
				t.Fatal("invalid set accepted")
			}
			found := false
			for _, e := range r.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s error in %+v", tt.field, r.Errors)
			}
		})
	}
}

func TestAttachSubflowSlugs(t *testing.T) {
	all := []Flow{
		{ID: 1, Slug: "checkout"},
		{ID: 2, Slug: "settle", ParentID: 1},
		{ID: 3, Slug: "refund", ParentID: 1},
	}
	AttachSubflowSlugs(all)
	if len(all[0].SubflowSlugs) != 2 || all[0].SubflowSlugs[0] != "refund" {
		t.Errorf("subflows = %v, want sorted [refund settle]", all[0].SubflowSlugs)
	}
	if len(all[1].SubflowSlugs) != 0 {
		t.Errorf("leaf flow got subflows: %v", all[1].SubflowSlugs)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Handle Checkout", "handle-checkout"},
		{"Create  order!!", "create-order"},
		{"--x--", "x"},
		{"Payments & billing", "payments-billing"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanizeSymbol(t *testing.T) {
	tests := []struct{ in, want string }{
		{"CreateOrder", "Create order"},
		{"create_order", "Create order"},
		{"HandleCheckout", "Handle checkout"},
		{"HTTPServer", "Http server"},
		{"chargeCard()", "Charge card"},
	}
	for _, tt := range tests {
		if got := HumanizeSymbol(tt.in); got != tt.want {
			t.Errorf("HumanizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntityFor(t *testing.T) {
	tests := []struct {
		name string
		mod  *modules.Module
		want string
	}{
		{"override wins", &modules.Module{Entity: "Order", Description: "payment helpers"}, "order"},
		{"description noun", &modules.Module{Description: "Handles payment settlement"}, "payment"},
		{"generic words skipped", &modules.Module{Description: "shared helpers module"}, GenericEntity},
		{"nil module", nil, GenericEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntityFor(tt.mod); got != tt.want {
				t.Errorf("EntityFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUniqueSlug(t *testing.T) {
	taken := map[string]bool{}
	if got := UniqueSlug("checkout", taken); got != "checkout" {
		t.Errorf("first slug = %q", got)
	}
	if got := UniqueSlug("checkout", taken); got != "checkout-2" {
		t.Errorf("second slug = %q", got)
	}
	if got := UniqueSlug("checkout", taken); got != "checkout-3" {
		t.Errorf("third slug = %q", got)
	}
}
