package interactions_test

import (
	"testing"

	"weft/internal/interactions"
	"weft/internal/symbols"
	"weft/internal/testutil"
)

// Exercises the admission gate against a real store: syntactic
// evidence, type-only detection, and inferred proposals all read from
// and write back to the same database a build would use.
func TestGateOverStoredGraph(t *testing.T) {
	g := testutil.Seed(t, testutil.GraphSpec{
		Modules: []testutil.ModuleSpec{
			{Path: "backend.services", Defs: []testutil.DefSpec{
				{Name: "ChargeCard"},
			}},
			{Path: "backend.controllers", Defs: []testutil.DefSpec{
				{Name: "HandleCheckout"},
			}},
			{Path: "backend.models", Defs: []testutil.DefSpec{
				{Name: "Order", Kind: symbols.KindType},
				{Name: "NewOrder"}, // one function keeps the module behavioral
			}},
			{Path: "shared.types", Defs: []testutil.DefSpec{
				{Name: "Money", Kind: symbols.KindType},
				{Name: "Currency", Kind: symbols.KindEnum},
			}},
		},
	})
	st := g.Store

	services := g.Modules["backend.services"]
	controllers := g.Modules["backend.controllers"]
	models := g.Modules["backend.models"]
	types := g.Modules["shared.types"]

	if _, err := st.UpsertInteraction(&interactions.Interaction{
		FromModuleID: controllers, ToModuleID: services,
		Direction: interactions.DirectionUni, Weight: 3,
		Pattern: interactions.PatternBusiness,
		Source:  interactions.SourceAST,
	}); err != nil {
		t.Fatalf("failed to record controllers->services: %v", err)
	}

	existing, err := st.ListInteractions()
	if err != nil {
		t.Fatalf("ListInteractions failed: %v", err)
	}
	typeOnly, err := st.TypeOnlyModuleIDs()
	if err != nil {
		t.Fatalf("TypeOnlyModuleIDs failed: %v", err)
	}
	if !typeOnly[types] {
		t.Fatalf("shared.types not detected as type-only: %v", typeOnly)
	}
	if typeOnly[models] {
		t.Fatal("backend.models detected as type-only despite NewOrder")
	}

	gate := interactions.NewGate(interactions.NewPairSet(existing), typeOnly)

	// Reversing syntactic evidence is rejected.
	res := gate.Admit(services, controllers, interactions.SourceInferred)
	if res.Pass || res.Reason != interactions.ReasonReverseOfAST {
		t.Errorf("services->controllers = %+v, want reverse-of-ast rejection", res)
	}

	// Type-only modules cannot initiate.
	res = gate.Admit(types, models, interactions.SourceInferred)
	if res.Pass || res.Reason != interactions.ReasonTypeOnlyInitiator {
		t.Errorf("shared.types->models = %+v, want type-only-initiator rejection", res)
	}

	// A fresh well-formed proposal passes and persists as inferred.
	res = gate.Admit(services, models, interactions.SourceInferred)
	if !res.Pass {
		t.Fatalf("services->models rejected: %+v", res)
	}
	id, err := st.UpsertInteraction(&interactions.Interaction{
		FromModuleID: services, ToModuleID: models,
		Direction: interactions.DirectionUni, Weight: 1,
		Pattern: interactions.PatternBusiness,
		Source:  interactions.SourceInferred,
	})
	if err != nil {
		t.Fatalf("failed to record services->models: %v", err)
	}
	recorded, err := st.GetInteractionByID(id)
	if err != nil {
		t.Fatalf("GetInteractionByID failed: %v", err)
	}
	if recorded.Source != interactions.SourceInferred {
		t.Errorf("recorded source = %s, want llm-inferred", recorded.Source)
	}

	// A second pass over the updated store sees the new row as a
	// duplicate; nothing is double-recorded.
	fresh, err := st.ListInteractions()
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 {
		t.Fatalf("interactions = %d, want 2", len(fresh))
	}
	regate := interactions.NewGate(interactions.NewPairSet(fresh), typeOnly)
	if res := regate.Check(services, models); res.Pass || res.Reason != interactions.ReasonDuplicate {
		t.Errorf("repeat services->models = %+v, want duplicate rejection", res)
	}
	if res := regate.Check(services, services); res.Pass || res.Reason != interactions.ReasonSelfLoop {
		t.Errorf("self pair = %+v, want self-loop rejection", res)
	}

	// The inferred reverse direction still does not block its own
	// reverse: models->services has only inferred evidence against it.
	if res := regate.Check(models, services); !res.Pass {
		t.Errorf("models->services = %+v, want pass (reverse is inferred, not syntactic)", res)
	}
}
