// Package symbols defines the raw fact model: source files, code
// definitions, and the symbol-level edges between them. Facts are
// produced by an external indexer and are immutable once stored;
// enrichment happens through per-definition metadata.
package symbols

// Kind classifies a definition.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindEnum      Kind = "enum"
	KindVariable  Kind = "variable"
	KindConstant  Kind = "constant"
)

// IsTypeLevel reports whether a kind describes a type-level definition
// with no executable behavior of its own.
func (k Kind) IsTypeLevel() bool {
	switch k {
	case KindInterface, KindType, KindEnum:
		return true
	}
	return false
}

// IsCallable reports whether a definition of this kind can appear as
// the endpoint of a call edge.
func (k Kind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod, KindClass:
		return true
	}
	return false
}

// EdgeKind classifies a symbol-level relationship edge.
type EdgeKind string

const (
	EdgeCall      EdgeKind = "call"
	EdgeUse       EdgeKind = "use"
	EdgeImplement EdgeKind = "implement"
)

// File represents an indexed source file.
type File struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	Language string `json:"language"`
}

// Definition represents an indexed source symbol. The structural
// fields are fixed by the indexer; everything learned later lives in
// metadata.
type Definition struct {
	ID        int64  `json:"id"`
	FileID    int64  `json:"fileId"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Container string `json:"container,omitempty"`
	Line      int    `json:"line"`
	EndLine   int    `json:"endLine"`
	Signature string `json:"signature,omitempty"`
	Exported  bool   `json:"exported"`
	// ModuleID is the owning module, 0 while unassigned.
	ModuleID int64 `json:"moduleId,omitempty"`
}

// Edge is a directed symbol-level relationship (call or usage)
// between two definitions.
type Edge struct {
	FromID int64    `json:"fromId"`
	ToID   int64    `json:"toId"`
	Kind   EdgeKind `json:"kind"`
	Line   int      `json:"line,omitempty"`
}

// ImportEdge records that one file imports another file's scope.
// Module-level import pairs are derived from these through module
// membership.
type ImportEdge struct {
	FromFileID int64 `json:"fromFileId"`
	ToFileID   int64 `json:"toFileId"`
}

// Metadata is one enrichment key-value attached to a definition.
// Keys are independent: any subset may be present.
type Metadata struct {
	DefinitionID int64  `json:"definitionId"`
	Key          string `json:"key"`
	Value        string `json:"value"`
}
