// Package flows models end-to-end business flows: ordered traces of
// module interactions, optionally hierarchical, produced by walking
// the symbol call graph from entry points and backfilled with gap
// flows so every interaction is covered.
package flows

import (
	"fmt"
	"sort"
)

// Tier ranks a flow's confidence and specificity.
const (
	// TierGap marks synthesized internal flows covering interactions no
	// traced flow reached.
	TierGap = 0
	// TierPartial marks flows with medium-confidence entries or steps
	// lacking definition-level evidence.
	TierPartial = 1
	// TierFull marks flows traced definition-by-definition from a
	// high-confidence entry point.
	TierFull = 2
)

// Stakeholder values. Free-form beyond these two; gap flows always
// belong to developers.
const (
	StakeholderUser      = "user"
	StakeholderDeveloper = "developer"
)

// MaxHierarchyDepth is the default bound on both trace depth and the
// flow parent chain.
const MaxHierarchyDepth = 5

// Flow is a named path through the system.
type Flow struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID int64  `json:"parentId,omitempty"`
	Depth    int    `json:"depth"`
	Domain   string `json:"domain,omitempty"`
	// Stakeholder names who the flow serves.
	Stakeholder string `json:"stakeholder"`
	// EntryDefinitionID/EntryModuleID locate the entry point; both are
	// 0 for synthesized gap flows.
	EntryDefinitionID int64 `json:"entryDefinitionId,omitempty"`
	EntryModuleID     int64 `json:"entryModuleId,omitempty"`
	Tier              int   `json:"tier"`

	Steps []Step `json:"steps,omitempty"`
	// SubflowSlugs are the slugs of direct child flows, derived from
	// parent pointers in one pass, never stored.
	SubflowSlugs []string `json:"subflowSlugs,omitempty"`
}

// Step is one ordered element of a flow. Every step references the
// module-level interaction it crosses; definition ids are present only
// where the tracer saw the actual symbol edge.
type Step struct {
	ID               int64 `json:"id"`
	FlowID           int64 `json:"flowId"`
	Seq              int   `json:"seq"`
	InteractionID    int64 `json:"interactionId"`
	FromDefinitionID int64 `json:"fromDefinitionId,omitempty"`
	ToDefinitionID   int64 `json:"toDefinitionId,omitempty"`
}

// HasDefinitionEvidence reports whether the step carries symbol-level
// evidence.
func (s Step) HasDefinitionEvidence() bool {
	return s.FromDefinitionID != 0 && s.ToDefinitionID != 0
}

// FlowError is one validation finding, attributed to a flow slug.
type FlowError struct {
	Slug    string `json:"slug"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FlowError) Error() string {
	return fmt.Sprintf("flow %q: %s: %s", e.Slug, e.Field, e.Message)
}

// FlowValidationResult collects validation findings over a whole flow
// set. Validation never stops at the first problem; batch callers want
// everything wrong at once.
type FlowValidationResult struct {
	Valid  bool        `json:"valid"`
	Errors []FlowError `json:"errors,omitempty"`
}

func (r *FlowValidationResult) addError(slug, field, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, FlowError{
		Slug:    slug,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// ValidateFlows checks a flow set for duplicate slugs, dangling or
// cyclic parent references, depth bound violations, and depth fields
// inconsistent with the parent chain. maxDepth <= 0 uses the default.
func ValidateFlows(all []Flow, maxDepth int) FlowValidationResult {
	if maxDepth <= 0 {
		maxDepth = MaxHierarchyDepth
	}
	result := FlowValidationResult{Valid: true}

	byID := make(map[int64]*Flow, len(all))
	slugs := make(map[string]int64, len(all))
	for i := range all {
		f := &all[i]
		if f.Slug == "" {
			result.addError(f.Slug, "slug", "flow %d has an empty slug", f.ID)
			continue
		}
		if prev, dup := slugs[f.Slug]; dup {
			result.addError(f.Slug, "slug", "duplicate slug (flows %d, %d)", prev, f.ID)
		} else {
			slugs[f.Slug] = f.ID
		}
		byID[f.ID] = f
	}

	for i := range all {
		f := &all[i]

		if f.ParentID != 0 {
			if f.ParentID == f.ID {
				result.addError(f.Slug, "parentId", "flow is its own parent")
			} else if _, ok := byID[f.ParentID]; !ok {
				result.addError(f.Slug, "parentId", "parent flow %d does not exist", f.ParentID)
			}
		}

		if f.Depth > maxDepth {
			result.addError(f.Slug, "depth", "depth %d exceeds maximum %d", f.Depth, maxDepth)
		}

		switch f.Tier {
		case TierGap, TierPartial, TierFull:
		default:
			result.addError(f.Slug, "tier", "unknown tier %d", f.Tier)
		}
	}

	// Walk each parent chain with a step bound so a cycle cannot hang
	// validation; the chain also cross-checks the stored depth.
	for i := range all {
		f := &all[i]
		if f.ParentID == f.ID {
			continue // already reported
		}
		hops := 0
		cur := f
		seen := map[int64]bool{f.ID: true}
		for cur.ParentID != 0 {
			parent, ok := byID[cur.ParentID]
			if !ok {
				break // dangling parent already reported
			}
			if seen[parent.ID] {
				result.addError(f.Slug, "parentId", "circular parent chain through flow %d", parent.ID)
				hops = -1
				break
			}
			seen[parent.ID] = true
			hops++
			if hops > maxDepth {
				result.addError(f.Slug, "depth", "parent chain longer than maximum depth %d", maxDepth)
				hops = -1
				break
			}
			cur = parent
		}
		if hops >= 0 && f.Depth != hops {
			result.addError(f.Slug, "depth", "stored depth %d does not match parent chain length %d", f.Depth, hops)
		}
	}

	return result
}

// AttachSubflowSlugs fills each flow's SubflowSlugs from the parent
// pointers of the whole set, sorted by slug.
func AttachSubflowSlugs(all []Flow) {
	children := make(map[int64][]string)
	for i := range all {
		if all[i].ParentID != 0 {
			children[all[i].ParentID] = append(children[all[i].ParentID], all[i].Slug)
		}
	}
	for i := range all {
		subs := children[all[i].ID]
		sort.Strings(subs)
		all[i].SubflowSlugs = subs
	}
}
