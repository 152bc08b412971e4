package store

import (
	"errors"
	"testing"

	"weft/internal/flows"
	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/slogutil"
	"weft/internal/symbols"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustFile(t *testing.T, s *Store, path string) int64 {
	t.Helper()
	id, err := s.InsertFile(path, "go")
	if err != nil {
		t.Fatalf("InsertFile(%s) failed: %v", path, err)
	}
	return id
}

func mustDef(t *testing.T, s *Store, fileID int64, name string, kind symbols.Kind) int64 {
	t.Helper()
	id, err := s.InsertDefinition(&symbols.Definition{
		FileID: fileID, Name: name, Kind: kind, Line: 1, EndLine: 10, Exported: true,
	})
	if err != nil {
		t.Fatalf("InsertDefinition(%s) failed: %v", name, err)
	}
	return id
}

func mustModule(t *testing.T, s *Store, path string) int64 {
	t.Helper()
	id, err := s.InsertModule(&modules.Module{Path: path})
	if err != nil {
		t.Fatalf("InsertModule(%s) failed: %v", path, err)
	}
	return id
}

func TestFileDedup(t *testing.T) {
	s := setupStore(t)

	first := mustFile(t, s, "app/api/handlers.go")
	second := mustFile(t, s, "app/api/handlers.go")
	if first != second {
		t.Errorf("re-inserting a path returned %d, want %d", second, first)
	}

	f, err := s.GetFileByPath("app/api/handlers.go")
	if err != nil {
		t.Fatalf("GetFileByPath failed: %v", err)
	}
	if f.ID != first || f.Language != "go" {
		t.Errorf("unexpected file: %+v", f)
	}
}

func TestDefinitionsAndEdges(t *testing.T) {
	s := setupStore(t)
	fileID := mustFile(t, s, "app/core/orders.go")

	process := mustDef(t, s, fileID, "ProcessOrder", symbols.KindFunction)
	persist := mustDef(t, s, fileID, "persist", symbols.KindFunction)

	got, err := s.GetDefinitionByID(process)
	if err != nil {
		t.Fatalf("GetDefinitionByID failed: %v", err)
	}
	if got.Name != "ProcessOrder" || got.ModuleID != 0 {
		t.Errorf("unexpected definition: %+v", got)
	}

	edge := symbols.Edge{FromID: process, ToID: persist, Kind: symbols.EdgeCall, Line: 7}
	if err := s.InsertCallEdge(edge); err != nil {
		t.Fatalf("InsertCallEdge failed: %v", err)
	}
	// Duplicate (from, to, kind) is a no-op.
	if err := s.InsertCallEdge(edge); err != nil {
		t.Fatalf("duplicate InsertCallEdge failed: %v", err)
	}
	edges, err := s.ListCallEdges()
	if err != nil {
		t.Fatalf("ListCallEdges failed: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("call edges = %d, want 1 after dedup", len(edges))
	}

	out, err := s.GetRelationshipEdges(process)
	if err != nil {
		t.Fatalf("GetRelationshipEdges failed: %v", err)
	}
	if len(out) != 1 || out[0].ToID != persist {
		t.Errorf("unexpected outgoing edges: %+v", out)
	}

	if _, err := s.GetDefinitionByID(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing definition error = %v, want ErrNotFound", err)
	}
}

func TestMetadata(t *testing.T) {
	s := setupStore(t)
	fileID := mustFile(t, s, "a.go")
	defID := mustDef(t, s, fileID, "Run", symbols.KindFunction)

	if err := s.SetMetadata(defID, "aspect.purpose", "orchestrates checkout"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := s.SetMetadata(defID, "aspect.purpose", "processes one order"); err != nil {
		t.Fatalf("SetMetadata overwrite failed: %v", err)
	}
	if err := s.SetMetadata(defID, "role", "entrypoint"); err != nil {
		t.Fatalf("SetMetadata second key failed: %v", err)
	}

	meta, err := s.GetMetadata(defID)
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta["aspect.purpose"] != "processes one order" {
		t.Errorf("overwrite lost: %v", meta)
	}
	if !meta.HasAspect("purpose") || !meta.IsEntrypoint() {
		t.Errorf("metadata set helpers disagree: %v", meta)
	}

	// Unknown definitions read as empty, but cannot be written.
	empty, err := s.GetMetadata(9999)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetMetadata(missing) = %v, %v; want empty set", empty, err)
	}
	if err := s.SetMetadata(9999, "k", "v"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetMetadata(missing) error = %v, want ErrNotFound", err)
	}

	ids, err := s.DefinitionIDsWithKey("aspect.purpose")
	if err != nil {
		t.Fatalf("DefinitionIDsWithKey failed: %v", err)
	}
	if !ids[defID] || len(ids) != 1 {
		t.Errorf("keyed ids = %v", ids)
	}
}

func TestModulesAndMembers(t *testing.T) {
	s := setupStore(t)

	coreID := mustModule(t, s, "app.core")
	if again := mustModule(t, s, "app.core"); again != coreID {
		t.Errorf("module path dedup broken: %d != %d", again, coreID)
	}

	core, err := s.GetModuleByPath("app.core")
	if err != nil {
		t.Fatalf("GetModuleByPath failed: %v", err)
	}
	if core.Name != "core" {
		t.Errorf("name not defaulted from path: %q", core.Name)
	}

	core.Description = "order processing"
	core.Entity = "order"
	if err := s.UpdateModule(core); err != nil {
		t.Fatalf("UpdateModule failed: %v", err)
	}
	reread, err := s.GetModuleByID(coreID)
	if err != nil {
		t.Fatalf("GetModuleByID failed: %v", err)
	}
	if reread.Entity != "order" {
		t.Errorf("update lost entity: %+v", reread)
	}

	fileID := mustFile(t, s, "app/core/orders.go")
	defID := mustDef(t, s, fileID, "ProcessOrder", symbols.KindFunction)
	typesID := mustModule(t, s, "app.types")

	if err := s.AssignMember(coreID, defID); err != nil {
		t.Fatalf("AssignMember failed: %v", err)
	}
	// Reassignment replaces, never duplicates.
	if err := s.AssignMember(typesID, defID); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	members, err := s.ListAllMembers()
	if err != nil {
		t.Fatalf("ListAllMembers failed: %v", err)
	}
	if len(members) != 1 || members[0].ModuleID != typesID {
		t.Errorf("membership after reassign: %+v", members)
	}

	// The definition read path reflects the new module immediately even
	// though an earlier read may have cached it.
	d, err := s.GetDefinitionByID(defID)
	if err != nil {
		t.Fatalf("GetDefinitionByID failed: %v", err)
	}
	if d.ModuleID != typesID {
		t.Errorf("definition module = %d, want %d", d.ModuleID, typesID)
	}
}

func TestTypeOnlyModuleIDs(t *testing.T) {
	s := setupStore(t)
	fileID := mustFile(t, s, "app/types/types.go")

	typesID := mustModule(t, s, "app.types")
	coreID := mustModule(t, s, "app.core")
	emptyID := mustModule(t, s, "app.empty")

	orderDef := mustDef(t, s, fileID, "Order", symbols.KindType)
	ifaceDef := mustDef(t, s, fileID, "Store", symbols.KindInterface)
	funcDef := mustDef(t, s, fileID, "Process", symbols.KindFunction)

	if err := s.AssignMember(typesID, orderDef); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignMember(typesID, ifaceDef); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignMember(coreID, funcDef); err != nil {
		t.Fatal(err)
	}

	typeOnly, err := s.TypeOnlyModuleIDs()
	if err != nil {
		t.Fatalf("TypeOnlyModuleIDs failed: %v", err)
	}
	if !typeOnly[typesID] {
		t.Error("all-type module not flagged")
	}
	if typeOnly[coreID] {
		t.Error("module with a function flagged type-only")
	}
	if _, present := typeOnly[emptyID]; present {
		t.Error("empty module must be absent, not flagged either way")
	}
}

func TestUpsertInteraction(t *testing.T) {
	s := setupStore(t)
	api := mustModule(t, s, "app.api")
	core := mustModule(t, s, "app.core")

	first := &interactions.Interaction{
		FromModuleID: api, ToModuleID: core,
		Direction: interactions.DirectionUni, Weight: 2,
		Pattern: interactions.PatternBusiness,
		Source:  interactions.SourceInferred,
		Symbols: []string{"HandleCheckout"},
	}
	id, err := s.UpsertInteraction(first)
	if err != nil {
		t.Fatalf("UpsertInteraction failed: %v", err)
	}

	// Same pair again: weight adds, evidence merges, syntactic source
	// wins over inferred, bi wins over uni.
	second := &interactions.Interaction{
		FromModuleID: api, ToModuleID: core,
		Direction: interactions.DirectionBi, Weight: 3,
		Pattern: interactions.PatternBusiness,
		Source:  interactions.SourceAST,
		Symbols: []string{"ProcessOrder", "HandleCheckout"},
	}
	id2, err := s.UpsertInteraction(second)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert created a new row: %d != %d", id2, id)
	}

	merged, err := s.GetInteractionByPair(api, core)
	if err != nil {
		t.Fatalf("GetInteractionByPair failed: %v", err)
	}
	if merged.Weight != 5 {
		t.Errorf("weight = %d, want 5", merged.Weight)
	}
	if merged.Source != interactions.SourceAST {
		t.Errorf("source = %s, want ast after syntactic upgrade", merged.Source)
	}
	if merged.Direction != interactions.DirectionBi {
		t.Errorf("direction = %s, want bi", merged.Direction)
	}
	if len(merged.Symbols) != 2 {
		t.Errorf("evidence = %v, want merged pair", merged.Symbols)
	}

	// Later inferred evidence must not downgrade a syntactic source.
	third := &interactions.Interaction{
		FromModuleID: api, ToModuleID: core,
		Direction: interactions.DirectionUni, Weight: 1,
		Pattern: interactions.PatternBusiness,
		Source:  interactions.SourceInferred,
	}
	if _, err := s.UpsertInteraction(third); err != nil {
		t.Fatalf("third upsert failed: %v", err)
	}
	merged, err = s.GetInteractionByPair(api, core)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Source != interactions.SourceAST || merged.Direction != interactions.DirectionBi {
		t.Errorf("downgrade happened: source=%s direction=%s", merged.Source, merged.Direction)
	}

	self := &interactions.Interaction{
		FromModuleID: api, ToModuleID: api,
		Direction: interactions.DirectionUni, Weight: 1,
		Source: interactions.SourceAST,
	}
	if _, err := s.UpsertInteraction(self); err == nil {
		t.Error("self-interaction accepted")
	}

	if _, err := s.GetInteractionByPair(core, api); !errors.Is(err, ErrNotFound) {
		t.Errorf("reverse pair error = %v, want ErrNotFound", err)
	}
}

func TestFlowsRoundTrip(t *testing.T) {
	s := setupStore(t)
	api := mustModule(t, s, "app.api")
	core := mustModule(t, s, "app.core")
	interID, err := s.UpsertInteraction(&interactions.Interaction{
		FromModuleID: api, ToModuleID: core,
		Direction: interactions.DirectionUni, Weight: 1,
		Source: interactions.SourceAST,
	})
	if err != nil {
		t.Fatal(err)
	}

	flow := &flows.Flow{
		Name: "Checkout", Slug: "checkout",
		Stakeholder: flows.StakeholderUser, Tier: flows.TierFull,
		EntryModuleID: api,
	}
	flowID, err := s.InsertFlow(flow)
	if err != nil {
		t.Fatalf("InsertFlow failed: %v", err)
	}
	if _, err := s.InsertFlow(&flows.Flow{Name: "Other", Slug: "checkout"}); err == nil {
		t.Error("duplicate slug accepted")
	}

	steps := []flows.Step{
		{Seq: 1, InteractionID: interID, FromDefinitionID: 11, ToDefinitionID: 12},
		{Seq: 2, InteractionID: interID},
	}
	if err := s.InsertFlowSteps(flowID, steps); err != nil {
		t.Fatalf("InsertFlowSteps failed: %v", err)
	}

	got, err := s.GetFlowBySlug("checkout")
	if err != nil {
		t.Fatalf("GetFlowBySlug failed: %v", err)
	}
	if len(got.Steps) != 2 || got.Steps[0].Seq != 1 || got.Steps[1].Seq != 2 {
		t.Errorf("steps out of order: %+v", got.Steps)
	}
	if !got.Steps[0].HasDefinitionEvidence() || got.Steps[1].HasDefinitionEvidence() {
		t.Errorf("definition evidence misread: %+v", got.Steps)
	}

	if err := s.DeleteFlow(flowID); err != nil {
		t.Fatalf("DeleteFlow failed: %v", err)
	}
	remaining, err := s.ListAllFlowSteps()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("steps survived flow deletion: %+v", remaining)
	}
	if err := s.DeleteFlow(flowID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestFeatures(t *testing.T) {
	s := setupStore(t)

	checkoutID, err := s.InsertFlow(&flows.Flow{
		Name: "Checkout", Slug: "checkout",
		Stakeholder: flows.StakeholderUser, Tier: flows.TierFull,
	})
	if err != nil {
		t.Fatal(err)
	}

	featID, err := s.InsertFeature("Payments", "payments")
	if err != nil {
		t.Fatalf("InsertFeature failed: %v", err)
	}
	if again, _ := s.InsertFeature("Payments", "payments"); again != featID {
		t.Errorf("feature slug dedup broken: %d != %d", again, featID)
	}

	if err := s.LinkFeatureFlow(featID, checkoutID); err != nil {
		t.Fatalf("LinkFeatureFlow failed: %v", err)
	}
	if err := s.LinkFeatureFlow(featID, checkoutID); err != nil {
		t.Fatalf("duplicate link failed: %v", err)
	}
	if err := s.LinkFeatureFlow(featID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("link to missing flow error = %v, want ErrNotFound", err)
	}

	features, err := s.ListFeatures()
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(features) != 1 || len(features[0].FlowSlugs) != 1 || features[0].FlowSlugs[0] != "checkout" {
		t.Errorf("unexpected features: %+v", features)
	}
}

func TestDomains(t *testing.T) {
	s := setupStore(t)

	id, err := s.UpsertDomain("billing", "")
	if err != nil {
		t.Fatalf("UpsertDomain failed: %v", err)
	}
	if again, _ := s.UpsertDomain("billing", "payments and settlement"); again != id {
		t.Errorf("domain dedup broken")
	}
	d, err := s.GetDomainByName("billing")
	if err != nil {
		t.Fatal(err)
	}
	if d.Description != "payments and settlement" {
		t.Errorf("description not updated: %+v", d)
	}

	if _, err := s.UpsertDomain("", "x"); err == nil {
		t.Error("empty domain name accepted")
	}

	fileID := mustFile(t, s, "a.go")
	defA := mustDef(t, s, fileID, "A", symbols.KindFunction)
	defB := mustDef(t, s, fileID, "B", symbols.KindFunction)
	if err := s.SetMetadata(defA, "aspect.domain", "billing"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMetadata(defB, "domain", "inventory"); err != nil {
		t.Fatal(err)
	}

	inUse, err := s.DomainsInUse()
	if err != nil {
		t.Fatalf("DomainsInUse failed: %v", err)
	}
	if inUse["billing"] != 1 || inUse["inventory"] != 1 {
		t.Errorf("usage counts = %v", inUse)
	}
}

func TestDeleteRowWhitelist(t *testing.T) {
	s := setupStore(t)
	api := mustModule(t, s, "app.api")
	core := mustModule(t, s, "app.core")
	interID, err := s.UpsertInteraction(&interactions.Interaction{
		FromModuleID: api, ToModuleID: core,
		Direction: interactions.DirectionUni, Weight: 1,
		Source: interactions.SourceAST,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRow("definitions", 1); err == nil {
		t.Error("raw fact table deletable through DeleteRow")
	}
	if err := s.DeleteRow("interactions", interID); err != nil {
		t.Fatalf("DeleteRow failed: %v", err)
	}
	if err := s.DeleteRow("interactions", interID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	s := setupStore(t)
	fileID := mustFile(t, s, "a.go")
	mustDef(t, s, fileID, "A", symbols.KindFunction)
	mustModule(t, s, "app")

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Files != 1 || stats.Definitions != 1 || stats.Modules != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
