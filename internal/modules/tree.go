package modules

import (
	"fmt"
	"sort"
)

// Tree is an arena over a module set: nodes indexed by id, child
// lists materialized in one pass. Parent pointers are never followed
// recursively after construction; acyclicity is proven once in
// BuildTree.
type Tree struct {
	byID     map[int64]*Module
	byPath   map[string]*Module
	children map[int64][]int64
	roots    []int64
	depth    map[int64]int
}

// BuildTree indexes the given modules and validates the hierarchy:
// unique ids and paths, parent pointers that resolve, and no cycles.
func BuildTree(mods []*Module) (*Tree, error) {
	t := &Tree{
		byID:     make(map[int64]*Module, len(mods)),
		byPath:   make(map[string]*Module, len(mods)),
		children: make(map[int64][]int64),
		depth:    make(map[int64]int, len(mods)),
	}

	for _, m := range mods {
		if err := ValidatePath(m.Path); err != nil {
			return nil, err
		}
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %d", m.ID)
		}
		if prev, dup := t.byPath[m.Path]; dup {
			return nil, fmt.Errorf("duplicate module path %q (ids %d, %d)", m.Path, prev.ID, m.ID)
		}
		t.byID[m.ID] = m
		t.byPath[m.Path] = m
	}

	// Single pass over parent pointers builds the child lists.
	for _, m := range mods {
		if m.ParentID == 0 {
			t.roots = append(t.roots, m.ID)
			continue
		}
		if _, ok := t.byID[m.ParentID]; !ok {
			return nil, fmt.Errorf("module %q references missing parent id %d", m.Path, m.ParentID)
		}
		if m.ParentID == m.ID {
			return nil, fmt.Errorf("module %q is its own parent", m.Path)
		}
		t.children[m.ParentID] = append(t.children[m.ParentID], m.ID)
	}

	// Depth assignment by BFS from the roots doubles as the cycle
	// check: any node left unvisited sits on a parent cycle.
	queue := append([]int64(nil), t.roots...)
	for _, id := range t.roots {
		t.depth[id] = 0
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range t.children[id] {
			t.depth[child] = t.depth[id] + 1
			queue = append(queue, child)
		}
	}
	if len(t.depth) != len(t.byID) {
		for _, m := range mods {
			if _, visited := t.depth[m.ID]; !visited {
				return nil, fmt.Errorf("module %q is part of a parent cycle", m.Path)
			}
		}
	}

	sort.Slice(t.roots, func(i, j int) bool {
		return t.byID[t.roots[i]].Path < t.byID[t.roots[j]].Path
	})
	for _, kids := range t.children {
		sort.Slice(kids, func(i, j int) bool {
			return t.byID[kids[i]].Path < t.byID[kids[j]].Path
		})
	}

	return t, nil
}

// ByID returns the module with the given id, or nil.
func (t *Tree) ByID(id int64) *Module {
	return t.byID[id]
}

// ByPath returns the module with the given dotted path, or nil.
func (t *Tree) ByPath(path string) *Module {
	return t.byPath[path]
}

// Roots returns the top-level module ids, ordered by path.
func (t *Tree) Roots() []int64 {
	return t.roots
}

// Children returns the direct child ids of a module, ordered by path.
func (t *Tree) Children(id int64) []int64 {
	return t.children[id]
}

// Depth returns the distance from the root level (roots are 0).
func (t *Tree) Depth(id int64) int {
	return t.depth[id]
}

// Len returns the number of modules in the tree.
func (t *Tree) Len() int {
	return len(t.byID)
}

// Walk visits every module top-down, parents before children, in
// path order within each level.
func (t *Tree) Walk(fn func(m *Module, depth int)) {
	var visit func(id int64)
	visit = func(id int64) {
		fn(t.byID[id], t.depth[id])
		for _, child := range t.children[id] {
			visit(child)
		}
	}
	for _, root := range t.roots {
		visit(root)
	}
}

// MissingAncestors returns the ancestor paths implied by the given
// module paths but not present among them, deduplicated and sorted
// shortest first. Construction uses this to materialize intermediate
// modules before parent ids are assigned.
func MissingAncestors(paths []string) []string {
	have := make(map[string]bool, len(paths))
	for _, p := range paths {
		have[p] = true
	}
	missing := make(map[string]bool)
	for _, p := range paths {
		for _, anc := range Ancestors(p) {
			if !have[anc] {
				missing[anc] = true
			}
		}
	}
	out := make([]string, 0, len(missing))
	for p := range missing {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
