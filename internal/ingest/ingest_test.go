package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"weft/internal/modules"
	"weft/internal/symbols"
)

func TestDeriveModulePath(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   string
	}{
		{"app/api/handlers.go", "proj", "proj.app.api"},
		{"app/api/handlers.go", "", "app.api"},
		{"main.go", "proj", "proj"},
		{"main.go", "", "root"},
		{"src/v1.2/util.py", "", "src.v1-2"},
		{"a b/c.go", "", "a-b"},
		{"./app/x.go", "proj", "proj.app"},
	}
	for _, tt := range tests {
		got := DeriveModulePath(NormalizePath(tt.path), tt.prefix)
		if got != tt.want {
			t.Errorf("DeriveModulePath(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestIgnored(t *testing.T) {
	ignore := []string{"vendor", "node_modules"}
	tests := []struct {
		path string
		want bool
	}{
		{"vendor/lib/x.go", true},
		{"app/vendor/x.go", true},
		{"app/vendor.go", false},
		{"app/api/handlers.go", false},
		{"node_modules/react/index.js", true},
	}
	for _, tt := range tests {
		if got := Ignored(tt.path, ignore); got != tt.want {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if Ignored("vendor/x.go", nil) {
		t.Error("empty ignore list should match nothing")
	}
}

func TestSymbolName(t *testing.T) {
	tests := []struct {
		symbol    string
		name      string
		container string
	}{
		{"scip-go gomod app . `app/api`/HandleCheckout().", "HandleCheckout", ""},
		{"scip-go gomod app . `app/core`/Engine#Close().", "Close", "Engine"},
		{"scip-go gomod app . `app/core`/Order#", "Order", ""},
		{"scip-go gomod app . `app/core`/Engine#logger.", "logger", "Engine"},
	}
	for _, tt := range tests {
		name, container := symbolName(tt.symbol)
		if name != tt.name || container != tt.container {
			t.Errorf("symbolName(%q) = (%q, %q), want (%q, %q)",
				tt.symbol, name, container, tt.name, tt.container)
		}
	}
}

func TestKindForFallback(t *testing.T) {
	if k := kindFor(nil, "x `p`/Run()."); k != symbols.KindFunction {
		t.Errorf("function descriptor: got %s", k)
	}
	if k := kindFor(nil, "x `p`/Order#"); k != symbols.KindType {
		t.Errorf("type descriptor: got %s", k)
	}
	si := &scippb.SymbolInformation{Kind: scippb.SymbolInformation_Method}
	if k := kindFor(si, "x `p`/Engine#Close()."); k != symbols.KindMethod {
		t.Errorf("method kind: got %s", k)
	}
}

func TestFunctionRanges(t *testing.T) {
	const symA = "x `p`/A()."
	const symB = "x `p`/B()."
	const symC = "x `p`/C()."
	doc := &scippb.Document{
		Occurrences: []*scippb.Occurrence{
			{Symbol: symB, SymbolRoles: int32(scippb.SymbolRole_Definition), Range: []int32{30, 5, 6}},
			{Symbol: symA, SymbolRoles: int32(scippb.SymbolRole_Definition), Range: []int32{10, 5, 6}},
			{Symbol: symC, SymbolRoles: int32(scippb.SymbolRole_Definition),
				Range: []int32{50, 5, 6}, EnclosingRange: []int32{50, 0, 72, 1}},
		},
	}
	kinds := map[string]symbols.Kind{
		symA: symbols.KindFunction,
		symB: symbols.KindFunction,
		symC: symbols.KindFunction,
	}

	ranges := functionRanges(doc, kinds)
	if len(ranges) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(ranges))
	}
	if ranges[0].symbol != symA || ranges[0].start != 10 || ranges[0].end != 29 {
		t.Errorf("range A = %+v, want 10..29", ranges[0])
	}
	if ranges[1].end != 49 {
		t.Errorf("range B end = %d, want 49", ranges[1].end)
	}
	if ranges[2].start != 50 || ranges[2].end != 72 {
		t.Errorf("range C = %+v, want 50..72 from enclosing range", ranges[2])
	}

	if got := enclosingFunction(ranges, 35); got != symB {
		t.Errorf("line 35 attributed to %q, want B", got)
	}
	if got := enclosingFunction(ranges, 5); got != "" {
		t.Errorf("line 5 attributed to %q, want none", got)
	}
}

// memStore is an in-memory ingest.Store with the real store's dedup
// semantics: files dedup by path, modules by path, definitions append.
type memStore struct {
	files    map[string]int64
	defs     []*symbols.Definition
	edges    []symbols.Edge
	imports  []symbols.ImportEdge
	mods     map[string]*modules.Module
	members  map[int64]int64
	meta     map[int64]map[string]string
	nextFile int64
	nextDef  int64
	nextMod  int64
}

func newMemStore() *memStore {
	return &memStore{
		files:   make(map[string]int64),
		mods:    make(map[string]*modules.Module),
		members: make(map[int64]int64),
		meta:    make(map[int64]map[string]string),
	}
}

func (m *memStore) InsertFile(path, language string) (int64, error) {
	if id, ok := m.files[path]; ok {
		return id, nil
	}
	m.nextFile++
	m.files[path] = m.nextFile
	return m.nextFile, nil
}

func (m *memStore) InsertDefinition(d *symbols.Definition) (int64, error) {
	m.nextDef++
	d.ID = m.nextDef
	cp := *d
	m.defs = append(m.defs, &cp)
	return d.ID, nil
}

func (m *memStore) InsertCallEdge(e symbols.Edge) error {
	m.edges = append(m.edges, e)
	return nil
}

func (m *memStore) InsertImportEdge(e symbols.ImportEdge) error {
	m.imports = append(m.imports, e)
	return nil
}

func (m *memStore) InsertModule(mod *modules.Module) (int64, error) {
	if existing, ok := m.mods[mod.Path]; ok {
		mod.ID = existing.ID
		return existing.ID, nil
	}
	m.nextMod++
	mod.ID = m.nextMod
	cp := *mod
	m.mods[mod.Path] = &cp
	return mod.ID, nil
}

func (m *memStore) AssignMember(moduleID, definitionID int64) error {
	m.members[definitionID] = moduleID
	return nil
}

func (m *memStore) SetMetadata(definitionID int64, key, value string) error {
	if m.meta[definitionID] == nil {
		m.meta[definitionID] = make(map[string]string)
	}
	m.meta[definitionID][key] = value
	return nil
}

func (m *memStore) defByName(name string) *symbols.Definition {
	for _, d := range m.defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func testIndex() *scippb.Index {
	const (
		symHandle  = "scip-go gomod app . `app/api`/HandleCheckout()."
		symProcess = "scip-go gomod app . `app/core`/ProcessOrder()."
		symOrder   = "scip-go gomod app . `app/core`/Order#"
	)
	return &scippb.Index{
		Documents: []*scippb.Document{
			{
				RelativePath: "app/api/handlers.go",
				Language:     "go",
				Symbols: []*scippb.SymbolInformation{
					{Symbol: symHandle, DisplayName: "HandleCheckout", Kind: scippb.SymbolInformation_Function},
				},
				Occurrences: []*scippb.Occurrence{
					{Symbol: symHandle, SymbolRoles: int32(scippb.SymbolRole_Definition), Range: []int32{10, 5, 19}},
					{Symbol: symProcess, Range: []int32{12, 8, 20}},
					{Symbol: symOrder, Range: []int32{14, 8, 13}},
				},
			},
			{
				RelativePath: "app/core/orders.go",
				Language:     "go",
				Symbols: []*scippb.SymbolInformation{
					{Symbol: symProcess, DisplayName: "ProcessOrder", Kind: scippb.SymbolInformation_Function},
				},
				Occurrences: []*scippb.Occurrence{
					{Symbol: symProcess, SymbolRoles: int32(scippb.SymbolRole_Definition), Range: []int32{5, 5, 17}},
					{Symbol: symOrder, SymbolRoles: int32(scippb.SymbolRole_Definition), Range: []int32{40, 5, 10}},
				},
			},
			{
				RelativePath: "vendor/dep/dep.go",
				Language:     "go",
			},
		},
	}
}

func TestIngestSCIP(t *testing.T) {
	st := newMemStore()
	ing := New(st, Options{ModulePrefix: "proj", Ignore: []string{"vendor"}}, nil)

	result, err := ing.IngestSCIP(testIndex())
	if err != nil {
		t.Fatalf("IngestSCIP failed: %v", err)
	}

	if result.Files != 2 || result.SkippedFiles != 1 {
		t.Errorf("files = %d skipped = %d, want 2 and 1", result.Files, result.SkippedFiles)
	}
	if result.Definitions != 3 {
		t.Errorf("definitions = %d, want 3", result.Definitions)
	}
	if result.CallEdges != 2 {
		t.Errorf("edges = %d, want 2", result.CallEdges)
	}
	if result.ImportEdges != 1 {
		t.Errorf("import edges = %d, want 1", result.ImportEdges)
	}
	// proj, proj.app, proj.app.api, proj.app.core
	if result.Modules != 4 {
		t.Errorf("modules = %d, want 4", result.Modules)
	}

	handle := st.defByName("HandleCheckout")
	process := st.defByName("ProcessOrder")
	order := st.defByName("Order")
	if handle == nil || process == nil || order == nil {
		t.Fatalf("missing definitions: %+v", st.defs)
	}
	if handle.Kind != symbols.KindFunction || !handle.Exported {
		t.Errorf("HandleCheckout = kind %s exported %v", handle.Kind, handle.Exported)
	}
	if order.Kind != symbols.KindType {
		t.Errorf("Order kind = %s, want type from descriptor fallback", order.Kind)
	}

	var gotCall, gotUse bool
	for _, e := range st.edges {
		if e.FromID == handle.ID && e.ToID == process.ID && e.Kind == symbols.EdgeCall {
			gotCall = true
		}
		if e.FromID == handle.ID && e.ToID == order.ID && e.Kind == symbols.EdgeUse {
			gotUse = true
		}
	}
	if !gotCall {
		t.Error("missing call edge HandleCheckout -> ProcessOrder")
	}
	if !gotUse {
		t.Error("missing use edge HandleCheckout -> Order")
	}

	api := st.mods["proj.app.api"]
	core := st.mods["proj.app.core"]
	app := st.mods["proj.app"]
	root := st.mods["proj"]
	if api == nil || core == nil || app == nil || root == nil {
		t.Fatalf("missing modules: %v", st.mods)
	}
	if app.ParentID != root.ID || api.ParentID != app.ID {
		t.Errorf("parent chain broken: proj=%d app.parent=%d api.parent=%d",
			root.ID, app.ParentID, api.ParentID)
	}
	if st.members[handle.ID] != api.ID {
		t.Errorf("HandleCheckout assigned to module %d, want %d", st.members[handle.ID], api.ID)
	}
	if st.members[order.ID] != core.ID {
		t.Errorf("Order assigned to module %d, want %d", st.members[order.ID], core.ID)
	}
}

func TestLoadSCIPIndex(t *testing.T) {
	if _, err := LoadSCIPIndex(filepath.Join(t.TempDir(), "missing.scip")); err == nil {
		t.Fatal("expected error for missing index")
	}

	data, err := proto.Marshal(testIndex())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "index.scip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	index, err := LoadSCIPIndex(path)
	if err != nil {
		t.Fatalf("LoadSCIPIndex failed: %v", err)
	}
	if len(index.Documents) != 3 {
		t.Errorf("documents = %d, want 3", len(index.Documents))
	}
}

const factsYAML = `
project: shop
files:
  - path: app/api/handlers.go
    language: go
  - path: app/core/orders.go
    language: go
definitions:
  - file: app/api/handlers.go
    name: HandleCheckout
    kind: function
    line: 10
    endLine: 42
    exported: true
    metadata:
      role: entrypoint
  - file: app/core/orders.go
    name: ProcessOrder
    kind: function
    line: 5
    endLine: 60
    exported: true
    module: shop.billing
callEdges:
  - from: {file: app/api/handlers.go, name: HandleCheckout}
    to: {file: app/core/orders.go, name: ProcessOrder}
    line: 17
importEdges:
  - from: app/api/handlers.go
    to: app/core/orders.go
modules:
  - path: shop.billing
    description: billing and settlement
    entity: invoice
`

func writeFacts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write facts: %v", err)
	}
	return path
}

func TestIngestFacts(t *testing.T) {
	ff, err := ParseFactsFile(writeFacts(t, factsYAML))
	if err != nil {
		t.Fatalf("ParseFactsFile failed: %v", err)
	}

	st := newMemStore()
	ing := New(st, Options{ModulePrefix: "ignored-by-project-override"}, nil)
	result, err := ing.IngestFacts(ff)
	if err != nil {
		t.Fatalf("IngestFacts failed: %v", err)
	}

	if result.Files != 2 || result.Definitions != 2 || result.CallEdges != 1 || result.ImportEdges != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}

	handle := st.defByName("HandleCheckout")
	process := st.defByName("ProcessOrder")
	if handle == nil || process == nil {
		t.Fatal("definitions not stored")
	}

	// Derived assignment for HandleCheckout, explicit for ProcessOrder.
	api := st.mods["shop.app.api"]
	billing := st.mods["shop.billing"]
	if api == nil || billing == nil {
		t.Fatalf("missing modules: %v", st.mods)
	}
	if st.members[handle.ID] != api.ID {
		t.Errorf("HandleCheckout in module %d, want derived shop.app.api", st.members[handle.ID])
	}
	if st.members[process.ID] != billing.ID {
		t.Errorf("ProcessOrder in module %d, want explicit shop.billing", st.members[process.ID])
	}
	if billing.Entity != "invoice" {
		t.Errorf("billing entity = %q, want invoice", billing.Entity)
	}

	if st.meta[handle.ID]["role"] != "entrypoint" {
		t.Errorf("metadata not written: %v", st.meta[handle.ID])
	}

	if st.edges[0].Kind != symbols.EdgeCall {
		t.Errorf("edge kind = %s, want default call", st.edges[0].Kind)
	}
}

func TestParseFactsFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"unknown kind",
			"files:\n  - path: a.go\ndefinitions:\n  - {file: a.go, name: X, kind: gizmo}\n",
			"unknown kind",
		},
		{
			"undeclared file",
			"definitions:\n  - {file: a.go, name: X, kind: function}\n",
			"not declared",
		},
		{
			"duplicate definition",
			"files:\n  - path: a.go\ndefinitions:\n  - {file: a.go, name: X, kind: function}\n  - {file: a.go, name: X, kind: function}\n",
			"duplicate definition",
		},
		{
			"dangling edge",
			"files:\n  - path: a.go\ndefinitions:\n  - {file: a.go, name: X, kind: function}\ncallEdges:\n  - from: {file: a.go, name: X}\n    to: {file: a.go, name: Y}\n",
			"not declared",
		},
		{
			"unknown field",
			"fils:\n  - path: a.go\n",
			"field fils not found",
		},
		{
			"bad module path",
			"modules:\n  - path: \"a..b\"\n",
			"empty segment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFactsFile(writeFacts(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
