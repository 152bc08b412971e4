package export

import (
	"weft/internal/domains"
	"weft/internal/flows"
	"weft/internal/groups"
	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/store"
)

// Snapshot is one complete export of the derived graph: everything a
// consumer needs to render or diff the model without the database.
type Snapshot struct {
	Metadata     Metadata                   `json:"metadata"`
	Modules      []*modules.Module          `json:"modules"`
	Interactions []interactions.Interaction `json:"interactions"`
	// Flows carry their steps and subflow slugs inline.
	Flows    []flows.Flow     `json:"flows"`
	Groups   *groups.Report   `json:"groups"`
	Domains  []domains.Domain `json:"domains,omitempty"`
	Coverage []AspectCoverage `json:"coverage,omitempty"`
	Stats    *store.Stats     `json:"stats"`
}

// Metadata identifies a snapshot.
type Metadata struct {
	ID        string `json:"id"`
	Generated string `json:"generated"`
	Tool      string `json:"tool"`
	Version   string `json:"version"`
}

// AspectCoverage is the annotated share of definitions for one aspect.
type AspectCoverage struct {
	Aspect  string  `json:"aspect"`
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// WriteResult reports where a snapshot landed and how big it is.
type WriteResult struct {
	Path            string `json:"path"`
	RawBytes        int    `json:"rawBytes"`
	CompressedBytes int    `json:"compressedBytes"`
}
