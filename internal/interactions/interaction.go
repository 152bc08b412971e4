// Package interactions models directed module-to-module edges and the
// admission gate that keeps inferred edges from contradicting
// syntactic evidence.
package interactions

import (
	"fmt"
	"sort"
)

// Direction of an interaction.
const (
	DirectionUni = "uni"
	DirectionBi  = "bi"
)

// Pattern classifies what kind of dependency an interaction is.
const (
	PatternBusiness = "business"
	PatternUtility  = "utility"
)

// Source identifies where the evidence for an interaction came from.
type Source string

const (
	// SourceAST marks edges observed in call expressions.
	SourceAST Source = "ast"
	// SourceASTImport marks edges observed in import statements.
	SourceASTImport Source = "ast-import"
	// SourceInferred marks edges proposed by the classifier.
	SourceInferred Source = "llm-inferred"
	// SourceManual marks edges recorded by hand.
	SourceManual Source = "manual"
)

// IsSyntactic reports whether a source carries hard syntactic
// evidence. Only syntactic sources are authoritative for direction.
func (s Source) IsSyntactic() bool {
	return s == SourceAST || s == SourceASTImport
}

// Interaction is a directed edge between two distinct modules.
// At most one row exists per ordered (FromModuleID, ToModuleID) pair;
// recording the same pair again upserts weight and evidence.
type Interaction struct {
	ID           int64    `json:"id"`
	FromModuleID int64    `json:"fromModuleId"`
	ToModuleID   int64    `json:"toModuleId"`
	Direction    string   `json:"direction"`
	Weight       int      `json:"weight"`
	Pattern      string   `json:"pattern"`
	Semantic     string   `json:"semantic,omitempty"`
	Source       Source   `json:"source"`
	Symbols      []string `json:"symbols,omitempty"`
}

// Pair is an ordered module pair.
type Pair struct {
	From int64
	To   int64
}

// Reverse returns the opposite ordered pair.
func (p Pair) Reverse() Pair {
	return Pair{From: p.To, To: p.From}
}

// PairSet indexes existing interactions by ordered pair, retaining
// each pair's source for reverse-evidence checks.
type PairSet map[Pair]Source

// NewPairSet builds a PairSet from existing interactions.
func NewPairSet(existing []Interaction) PairSet {
	set := make(PairSet, len(existing))
	for _, in := range existing {
		set[Pair{From: in.FromModuleID, To: in.ToModuleID}] = in.Source
	}
	return set
}

// Has reports whether the ordered pair is present.
func (s PairSet) Has(p Pair) bool {
	_, ok := s[p]
	return ok
}

// Add records a pair with its source.
func (s PairSet) Add(p Pair, src Source) {
	s[p] = src
}

// Validate checks an interaction for shape errors before persistence.
func (in *Interaction) Validate() error {
	if in.FromModuleID == in.ToModuleID {
		return fmt.Errorf("interaction from module %d to itself", in.FromModuleID)
	}
	if in.Weight < 1 {
		return fmt.Errorf("interaction weight %d, must be positive", in.Weight)
	}
	switch in.Direction {
	case DirectionUni, DirectionBi:
	default:
		return fmt.Errorf("unknown direction %q", in.Direction)
	}
	switch in.Source {
	case SourceAST, SourceASTImport, SourceInferred, SourceManual:
	default:
		return fmt.Errorf("unknown source %q", in.Source)
	}
	return nil
}

// MergeEvidence folds new evidencing symbol names into an existing
// list, deduplicated and sorted.
func MergeEvidence(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		seen[s] = true
	}
	merged := make([]string, 0, len(seen))
	for s := range seen {
		merged = append(merged, s)
	}
	sort.Strings(merged)
	return merged
}
