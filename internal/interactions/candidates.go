package interactions

import (
	"sort"

	"weft/internal/symbols"
)

// maxEvidenceNames caps a candidate's symbol evidence list; the
// verifier rebuilds evidence with the same cap.
const maxEvidenceNames = 8

// Candidate is one module pair proposed for recording, aggregated from
// symbol-level evidence. Candidates are inputs to the gate; recording
// is the caller's job.
type Candidate struct {
	Pair
	Source    Source   `json:"source"`
	Direction string   `json:"direction"`
	Weight    int      `json:"weight"`
	Symbols   []string `json:"symbols,omitempty"`
}

// Interaction converts a candidate into a record ready to persist.
func (c Candidate) Interaction() *Interaction {
	return &Interaction{
		FromModuleID: c.From,
		ToModuleID:   c.To,
		Direction:    c.Direction,
		Weight:       c.Weight,
		Pattern:      PatternBusiness,
		Source:       c.Source,
		Symbols:      c.Symbols,
	}
}

// CandidatesFromCalls aggregates cross-module relationship edges into
// ordered module-pair candidates. Weight counts the edges behind the
// pair, symbols carry the deduplicated evidencing definition names, and
// a pair whose reverse also has edge evidence is marked bidirectional.
// Output order is (from, to) ascending so admission is deterministic.
func CandidatesFromCalls(defs []symbols.Definition, edges []symbols.Edge) []Candidate {
	moduleOf := make(map[int64]int64, len(defs))
	nameOf := make(map[int64]string, len(defs))
	for _, d := range defs {
		moduleOf[d.ID] = d.ModuleID
		nameOf[d.ID] = d.Name
	}

	weights := make(map[Pair]int)
	evidence := make(map[Pair][]string)
	for _, e := range edges {
		from, to := moduleOf[e.FromID], moduleOf[e.ToID]
		if from == 0 || to == 0 || from == to {
			continue
		}
		p := Pair{From: from, To: to}
		weights[p]++
		evidence[p] = append(evidence[p], nameOf[e.FromID], nameOf[e.ToID])
	}

	out := make([]Candidate, 0, len(weights))
	for p, w := range weights {
		c := Candidate{
			Pair:      p,
			Source:    SourceAST,
			Direction: DirectionUni,
			Weight:    w,
			Symbols:   dedupEvidence(evidence[p]),
		}
		if weights[p.Reverse()] > 0 {
			c.Direction = DirectionBi
		}
		out = append(out, c)
	}
	sortCandidates(out)
	return out
}

// CandidatesFromImports maps file-level import edges onto module pairs
// through the file-to-module assignment. Files without a module are
// skipped; weight counts the importing file pairs.
func CandidatesFromImports(imports []symbols.ImportEdge, fileModule map[int64]int64) []Candidate {
	weights := make(map[Pair]int)
	for _, e := range imports {
		from, to := fileModule[e.FromFileID], fileModule[e.ToFileID]
		if from == 0 || to == 0 || from == to {
			continue
		}
		weights[Pair{From: from, To: to}]++
	}

	out := make([]Candidate, 0, len(weights))
	for p, w := range weights {
		out = append(out, Candidate{
			Pair:      p,
			Source:    SourceASTImport,
			Direction: DirectionUni,
			Weight:    w,
		})
	}
	sortCandidates(out)
	return out
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].From != cs[j].From {
			return cs[i].From < cs[j].From
		}
		return cs[i].To < cs[j].To
	})
}

func dedupEvidence(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var names []string
	for _, n := range raw {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	if len(names) > maxEvidenceNames {
		names = names[:maxEvidenceNames]
	}
	return names
}
