// Package modules models the hierarchical grouping of definitions
// into named module paths and the tree built over those paths.
package modules

import (
	"fmt"
	"strings"

	"weft/internal/symbols"
)

// PathSeparator joins segments of a module path.
const PathSeparator = "."

// Module represents one node of the module hierarchy. Paths are
// dotted and unique (e.g. "backend.services"); the parent pointer is
// derived from the path and stored for direct lookup.
type Module struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	Name string `json:"name"`
	// ParentID is 0 for top-level modules.
	ParentID    int64  `json:"parentId,omitempty"`
	Description string `json:"description,omitempty"`
	// Entity is the classifier-assigned entity override used for flow
	// naming. Empty until classified or declared.
	Entity string `json:"entity,omitempty"`
}

// LastSegment returns the final segment of a dotted module path.
func LastSegment(path string) string {
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ParentPath returns the dotted path of the parent module, or "" for
// a top-level path.
func ParentPath(path string) string {
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[:i]
	}
	return ""
}

// Ancestors returns every proper prefix path, shortest first.
// Ancestors("a.b.c") = ["a", "a.b"].
func Ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[:i])
		}
	}
	return out
}

// ValidatePath checks a dotted module path for shape errors: empty
// paths, empty segments, or surrounding whitespace.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("module path is empty")
	}
	if strings.TrimSpace(path) != path {
		return fmt.Errorf("module path %q has surrounding whitespace", path)
	}
	for _, seg := range strings.Split(path, PathSeparator) {
		if seg == "" {
			return fmt.Errorf("module path %q has an empty segment", path)
		}
	}
	return nil
}

// IsTypeOnly reports whether a member set consists exclusively of
// type-level definitions. A module with zero members is not type-only:
// absence of evidence is not evidence of absence.
func IsTypeOnly(members []symbols.Definition) bool {
	if len(members) == 0 {
		return false
	}
	for _, d := range members {
		if !d.Kind.IsTypeLevel() {
			return false
		}
	}
	return true
}
