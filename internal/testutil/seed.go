// Package testutil seeds real temp-directory stores with small code
// graphs for integration-style tests that cross package boundaries.
package testutil

import (
	"testing"

	"weft/internal/modules"
	"weft/internal/slogutil"
	"weft/internal/store"
	"weft/internal/symbols"
)

// DefSpec is one definition to seed. Kind defaults to function,
// Exported to true; most scenario symbols are exported callables.
type DefSpec struct {
	Name    string
	Kind    symbols.Kind
	Private bool
	Meta    map[string]string
}

// ModuleSpec is one module and its member definitions. All members
// land in a single file named after the module path.
type ModuleSpec struct {
	Path string
	Defs []DefSpec
}

// EdgeSpec is a symbol-level edge between two seeded definitions,
// referenced by name. Kind defaults to call.
type EdgeSpec struct {
	From, To string
	Kind     symbols.EdgeKind
}

// GraphSpec is a complete scenario graph.
type GraphSpec struct {
	Modules []ModuleSpec
	Edges   []EdgeSpec
}

// SeededGraph indexes what seeding created.
type SeededGraph struct {
	Store   *store.Store
	Defs    map[string]int64
	Modules map[string]int64
}

// NewStore opens a store under a fresh temp directory, closed on test
// cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// Seed materializes a GraphSpec into a fresh store. Definition names
// must be unique across the whole graph.
func Seed(t *testing.T, spec GraphSpec) *SeededGraph {
	t.Helper()
	st := NewStore(t)

	g := &SeededGraph{
		Store:   st,
		Defs:    make(map[string]int64),
		Modules: make(map[string]int64),
	}

	for _, ms := range spec.Modules {
		modID, err := st.InsertModule(&modules.Module{Path: ms.Path})
		if err != nil {
			t.Fatalf("failed to insert module %s: %v", ms.Path, err)
		}
		g.Modules[ms.Path] = modID

		fileID, err := st.InsertFile(ms.Path+".go", "go")
		if err != nil {
			t.Fatalf("failed to insert file for %s: %v", ms.Path, err)
		}

		for _, ds := range ms.Defs {
			kind := ds.Kind
			if kind == "" {
				kind = symbols.KindFunction
			}
			defID, err := st.InsertDefinition(&symbols.Definition{
				FileID:   fileID,
				Name:     ds.Name,
				Kind:     kind,
				Line:     1,
				EndLine:  10,
				Exported: !ds.Private,
			})
			if err != nil {
				t.Fatalf("failed to insert definition %s: %v", ds.Name, err)
			}
			if _, dup := g.Defs[ds.Name]; dup {
				t.Fatalf("definition name %s seeded twice", ds.Name)
			}
			g.Defs[ds.Name] = defID

			if err := st.AssignMember(modID, defID); err != nil {
				t.Fatalf("failed to assign %s to %s: %v", ds.Name, ms.Path, err)
			}
			for k, v := range ds.Meta {
				if err := st.SetMetadata(defID, k, v); err != nil {
					t.Fatalf("failed to set metadata on %s: %v", ds.Name, err)
				}
			}
		}
	}

	for _, es := range spec.Edges {
		from, ok := g.Defs[es.From]
		if !ok {
			t.Fatalf("edge references unknown definition %s", es.From)
		}
		to, ok := g.Defs[es.To]
		if !ok {
			t.Fatalf("edge references unknown definition %s", es.To)
		}
		kind := es.Kind
		if kind == "" {
			kind = symbols.EdgeCall
		}
		if err := st.InsertCallEdge(symbols.Edge{FromID: from, ToID: to, Kind: kind, Line: 5}); err != nil {
			t.Fatalf("failed to insert edge %s->%s: %v", es.From, es.To, err)
		}
	}

	return g
}
