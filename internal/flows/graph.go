package flows

import (
	"sort"

	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/symbols"
)

// Graph is the in-memory projection the tracer walks: definitions,
// their outgoing symbol edges, module assignment, and the recorded
// module-pair interactions. It is assembled once per command from full
// store scans; the walk itself never touches the store.
type Graph struct {
	defs     map[int64]symbols.Definition
	out      map[int64][]symbols.Edge
	inDegree map[int64]int
	mods     map[int64]*modules.Module
	inters   map[interactions.Pair]*interactions.Interaction
	meta     map[int64]symbols.MetadataSet
}

// NewGraph assembles a Graph from scanned facts. Metadata may be nil
// when annotation has not run.
func NewGraph(defs []symbols.Definition, edges []symbols.Edge,
	mods []*modules.Module, inters []interactions.Interaction,
	meta map[int64]symbols.MetadataSet) *Graph {

	g := &Graph{
		defs:     make(map[int64]symbols.Definition, len(defs)),
		out:      make(map[int64][]symbols.Edge),
		inDegree: make(map[int64]int),
		mods:     make(map[int64]*modules.Module, len(mods)),
		inters:   make(map[interactions.Pair]*interactions.Interaction, len(inters)),
		meta:     meta,
	}
	for _, d := range defs {
		g.defs[d.ID] = d
	}
	for _, e := range edges {
		g.out[e.FromID] = append(g.out[e.FromID], e)
		g.inDegree[e.ToID]++
	}
	for _, m := range mods {
		g.mods[m.ID] = m
	}
	for i := range inters {
		in := &inters[i]
		g.inters[interactions.Pair{From: in.FromModuleID, To: in.ToModuleID}] = in
	}

	// Deterministic walk order regardless of scan order.
	for id := range g.out {
		es := g.out[id]
		sort.Slice(es, func(i, j int) bool { return es[i].ToID < es[j].ToID })
	}
	return g
}

// Definition returns the definition with the given id.
func (g *Graph) Definition(id int64) (symbols.Definition, bool) {
	d, ok := g.defs[id]
	return d, ok
}

// Module returns the module with the given id.
func (g *Graph) Module(id int64) *modules.Module {
	return g.mods[id]
}

// Outgoing returns a definition's outgoing edges, ordered by target id.
func (g *Graph) Outgoing(id int64) []symbols.Edge {
	return g.out[id]
}

// ModuleOf returns the owning module id of a definition, 0 when
// unassigned.
func (g *Graph) ModuleOf(defID int64) int64 {
	if d, ok := g.defs[defID]; ok {
		return d.ModuleID
	}
	return 0
}

// InteractionFor returns the recorded interaction for an ordered module
// pair, if any.
func (g *Graph) InteractionFor(from, to int64) *interactions.Interaction {
	return g.inters[interactions.Pair{From: from, To: to}]
}

// Interactions returns all interactions, ordered by id.
func (g *Graph) Interactions() []*interactions.Interaction {
	out := make([]*interactions.Interaction, 0, len(g.inters))
	for _, in := range g.inters {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// metadataOf returns a definition's metadata set, possibly nil.
func (g *Graph) metadataOf(defID int64) symbols.MetadataSet {
	if g.meta == nil {
		return nil
	}
	return g.meta[defID]
}

// EntryCandidates selects the definitions flows may start from:
// exported callable definitions whose metadata marks them as entry
// points. When no definition carries the role annotation yet, exported
// callables with no incoming calls stand in; those entries are treated
// as medium confidence.
type EntryCandidate struct {
	Definition symbols.Definition
	// Annotated is true when the classifier marked the definition an
	// entry point, false for the zero-incoming-edges fallback.
	Annotated bool
}

// EntryCandidates lists entry points in deterministic id order.
func (g *Graph) EntryCandidates() []EntryCandidate {
	var annotated, fallback []EntryCandidate
	for _, d := range sortedDefs(g.defs) {
		if !d.Exported || !d.Kind.IsCallable() || d.ModuleID == 0 {
			continue
		}
		if m := g.metadataOf(d.ID); m.IsEntrypoint() {
			annotated = append(annotated, EntryCandidate{Definition: d, Annotated: true})
			continue
		}
		if g.inDegree[d.ID] == 0 && len(g.out[d.ID]) > 0 {
			fallback = append(fallback, EntryCandidate{Definition: d, Annotated: false})
		}
	}
	if len(annotated) > 0 {
		return annotated
	}
	return fallback
}

func sortedDefs(defs map[int64]symbols.Definition) []symbols.Definition {
	out := make([]symbols.Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
