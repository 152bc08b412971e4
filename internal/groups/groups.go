// Package groups partitions modules into process groups: the connected
// components of the module graph with interactions taken as undirected
// edges. Groups are derived on demand and never persisted.
package groups

import (
	"sort"
	"strings"

	"weft/internal/interactions"
	"weft/internal/modules"
)

// Group is one connected component of the module graph.
type Group struct {
	Label string `json:"label"`
	// ModulePaths lists member modules, sorted.
	ModulePaths []string `json:"modulePaths"`
	Size        int      `json:"size"`
}

// Report is the full partition. Major groups have two or more members
// and suggest independently deployable clusters; isolated modules
// interact with nothing.
type Report struct {
	Major    []Group `json:"major"`
	Isolated []Group `json:"isolated"`
	// TotalModules is the number of modules partitioned; the union of
	// all groups always adds up to it.
	TotalModules int `json:"totalModules"`
}

// Compute partitions the given modules by the given interactions.
// Every module lands in exactly one group; interactions referencing
// unknown modules are ignored rather than inventing vertices.
func Compute(mods []*modules.Module, inters []interactions.Interaction) *Report {
	uf := newUnionFind(len(mods))
	index := make(map[int64]int, len(mods))
	for i, m := range mods {
		index[m.ID] = i
	}

	for _, in := range inters {
		from, okFrom := index[in.FromModuleID]
		to, okTo := index[in.ToModuleID]
		if okFrom && okTo {
			uf.union(from, to)
		}
	}

	members := make(map[int][]string)
	for i, m := range mods {
		root := uf.find(i)
		members[root] = append(members[root], m.Path)
	}

	report := &Report{TotalModules: len(mods)}
	for _, paths := range members {
		sort.Strings(paths)
		g := Group{
			Label:       labelFor(paths),
			ModulePaths: paths,
			Size:        len(paths),
		}
		if g.Size >= 2 {
			report.Major = append(report.Major, g)
		} else {
			report.Isolated = append(report.Isolated, g)
		}
	}

	sort.Slice(report.Major, func(i, j int) bool {
		if report.Major[i].Size != report.Major[j].Size {
			return report.Major[i].Size > report.Major[j].Size
		}
		return report.Major[i].Label < report.Major[j].Label
	})
	sort.Slice(report.Isolated, func(i, j int) bool {
		return report.Isolated[i].Label < report.Isolated[j].Label
	})
	return report
}

// labelFor names a group: the longest common dotted prefix of member
// paths when one exists, else the most frequent last path segment.
func labelFor(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if len(paths) == 1 {
		return paths[0]
	}

	if prefix := commonDottedPrefix(paths); prefix != "" {
		return prefix
	}

	counts := make(map[string]int)
	for _, p := range paths {
		counts[modules.LastSegment(p)]++
	}
	best := ""
	for seg, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && seg < best) {
			best = seg
		}
	}
	return best
}

// commonDottedPrefix returns the longest whole-segment prefix shared by
// all paths, or "".
func commonDottedPrefix(paths []string) string {
	segs := strings.Split(paths[0], modules.PathSeparator)
	for _, p := range paths[1:] {
		other := strings.Split(p, modules.PathSeparator)
		if len(other) < len(segs) {
			segs = segs[:len(other)]
		}
		for i := range segs {
			if segs[i] != other[i] {
				segs = segs[:i]
				break
			}
		}
		if len(segs) == 0 {
			return ""
		}
	}
	return strings.Join(segs, modules.PathSeparator)
}

// unionFind with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
