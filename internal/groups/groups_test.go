package groups

import (
	"testing"

	"weft/internal/interactions"
	"weft/internal/modules"
)

func mod(id int64, path string) *modules.Module {
	return &modules.Module{ID: id, Path: path, Name: modules.LastSegment(path)}
}

func edge(from, to int64) interactions.Interaction {
	return interactions.Interaction{FromModuleID: from, ToModuleID: to}
}

func TestComputePartition(t *testing.T) {
	mods := []*modules.Module{
		mod(1, "shop.api"),
		mod(2, "shop.core"),
		mod(3, "shop.billing"),
		mod(4, "tools.scripts"),
	}
	inters := []interactions.Interaction{
		edge(1, 2),
		edge(2, 3),
		// Direction does not matter for grouping.
		edge(3, 1),
	}

	report := Compute(mods, inters)

	if report.TotalModules != 4 {
		t.Fatalf("TotalModules = %d, want 4", report.TotalModules)
	}
	if len(report.Major) != 1 || len(report.Isolated) != 1 {
		t.Fatalf("major=%d isolated=%d, want 1 and 1", len(report.Major), len(report.Isolated))
	}

	major := report.Major[0]
	if major.Size != 3 || major.Label != "shop" {
		t.Errorf("major group = %+v, want size 3 labeled shop", major)
	}
	want := []string{"shop.api", "shop.billing", "shop.core"}
	for i, p := range want {
		if major.ModulePaths[i] != p {
			t.Errorf("ModulePaths[%d] = %q, want %q", i, major.ModulePaths[i], p)
		}
	}

	iso := report.Isolated[0]
	if iso.Size != 1 || iso.Label != "tools.scripts" {
		t.Errorf("isolated group = %+v", iso)
	}

	// Every module lands in exactly one group.
	total := 0
	for _, g := range report.Major {
		total += g.Size
	}
	for _, g := range report.Isolated {
		total += g.Size
	}
	if total != report.TotalModules {
		t.Errorf("group sizes sum to %d, want %d", total, report.TotalModules)
	}
}

func TestComputeIgnoresUnknownModules(t *testing.T) {
	mods := []*modules.Module{mod(1, "app.api"), mod(2, "app.core")}
	inters := []interactions.Interaction{
		edge(1, 99), // dangling target: no vertex invented
		edge(1, 2),
	}
	report := Compute(mods, inters)
	if len(report.Major) != 1 || report.Major[0].Size != 2 {
		t.Errorf("report = %+v, want one group of 2", report)
	}
}

func TestComputeEmpty(t *testing.T) {
	report := Compute(nil, nil)
	if report.TotalModules != 0 || len(report.Major) != 0 || len(report.Isolated) != 0 {
		t.Errorf("empty input produced %+v", report)
	}
}

func TestMajorGroupOrdering(t *testing.T) {
	mods := []*modules.Module{
		mod(1, "a.x"), mod(2, "a.y"),
		mod(3, "b.x"), mod(4, "b.y"), mod(5, "b.z"),
	}
	inters := []interactions.Interaction{
		edge(1, 2),
		edge(3, 4), edge(4, 5),
	}
	report := Compute(mods, inters)
	if len(report.Major) != 2 {
		t.Fatalf("major groups = %d, want 2", len(report.Major))
	}
	// Larger group first.
	if report.Major[0].Label != "b" || report.Major[1].Label != "a" {
		t.Errorf("order = [%s %s], want [b a]", report.Major[0].Label, report.Major[1].Label)
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"single", []string{"shop.api"}, "shop.api"},
		{"common prefix", []string{"shop.api", "shop.core.orders"}, "shop"},
		{"deeper prefix", []string{"shop.core.a", "shop.core.b"}, "shop.core"},
		{"no prefix falls back to frequent segment",
			[]string{"a.store", "b.store", "c.cache"}, "store"},
		{"frequency tie broken lexicographically",
			[]string{"a.store", "b.cache"}, "cache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := labelFor(tt.paths); got != tt.want {
				t.Errorf("labelFor(%v) = %q, want %q", tt.paths, got, tt.want)
			}
		})
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(3, 4)
	if uf.find(0) != uf.find(1) {
		t.Error("0 and 1 not joined")
	}
	if uf.find(0) == uf.find(3) {
		t.Error("separate components share a root")
	}
	uf.union(1, 3)
	if uf.find(0) != uf.find(4) {
		t.Error("transitive union failed")
	}
	if uf.find(2) == uf.find(0) {
		t.Error("untouched element joined a component")
	}
}
