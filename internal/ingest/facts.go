package ingest

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"weft/internal/modules"
	"weft/internal/symbols"
)

// FactsFile is the parser-agnostic ingestion schema. Any indexer that
// can emit files, definitions, and edges as YAML (or JSON, which YAML
// subsumes) can feed the store without a SCIP toolchain.
type FactsFile struct {
	// Project overrides the configured module prefix when set.
	Project     string           `yaml:"project"`
	Files       []FactFile       `yaml:"files"`
	Definitions []FactDefinition `yaml:"definitions"`
	CallEdges   []FactEdge       `yaml:"callEdges"`
	ImportEdges []FactImport     `yaml:"importEdges"`
	Modules     []FactModule     `yaml:"modules"`
}

type FactFile struct {
	Path     string `yaml:"path"`
	Language string `yaml:"language"`
}

type FactDefinition struct {
	File      string `yaml:"file"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Container string `yaml:"container"`
	Line      int    `yaml:"line"`
	EndLine   int    `yaml:"endLine"`
	Signature string `yaml:"signature"`
	Exported  bool   `yaml:"exported"`
	// Module assigns the definition explicitly; empty means derive
	// from the file path.
	Module string `yaml:"module"`
	// Metadata seeds manual annotations (plain keys, not aspect keys).
	Metadata map[string]string `yaml:"metadata"`
}

// FactRef names a definition by file path and name.
type FactRef struct {
	File string `yaml:"file"`
	Name string `yaml:"name"`
}

type FactEdge struct {
	From FactRef `yaml:"from"`
	To   FactRef `yaml:"to"`
	// Kind defaults to "call".
	Kind string `yaml:"kind"`
	Line int    `yaml:"line"`
}

type FactImport struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type FactModule struct {
	Path        string `yaml:"path"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Entity      string `yaml:"entity"`
}

var validKinds = map[string]symbols.Kind{
	string(symbols.KindFunction):  symbols.KindFunction,
	string(symbols.KindMethod):    symbols.KindMethod,
	string(symbols.KindClass):     symbols.KindClass,
	string(symbols.KindInterface): symbols.KindInterface,
	string(symbols.KindType):      symbols.KindType,
	string(symbols.KindEnum):      symbols.KindEnum,
	string(symbols.KindVariable):  symbols.KindVariable,
	string(symbols.KindConstant):  symbols.KindConstant,
}

var validEdgeKinds = map[string]symbols.EdgeKind{
	string(symbols.EdgeCall):      symbols.EdgeCall,
	string(symbols.EdgeUse):       symbols.EdgeUse,
	string(symbols.EdgeImplement): symbols.EdgeImplement,
}

// ParseFactsFile reads, decodes, and validates a facts file. Unknown
// YAML fields are rejected so schema typos surface before anything is
// written.
func ParseFactsFile(path string) (*FactsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ff FactsFile
	if err := dec.Decode(&ff); err != nil {
		return nil, fmt.Errorf("failed to parse facts file %s: %w", path, err)
	}
	if err := ff.validate(); err != nil {
		return nil, fmt.Errorf("invalid facts file %s: %w", path, err)
	}
	return &ff, nil
}

func (ff *FactsFile) validate() error {
	files := make(map[string]bool, len(ff.Files))
	for i, f := range ff.Files {
		if f.Path == "" {
			return fmt.Errorf("files[%d]: path is empty", i)
		}
		p := NormalizePath(f.Path)
		if files[p] {
			return fmt.Errorf("files[%d]: duplicate path %s", i, p)
		}
		files[p] = true
	}

	defs := make(map[FactRef]bool, len(ff.Definitions))
	for i, d := range ff.Definitions {
		if d.Name == "" {
			return fmt.Errorf("definitions[%d]: name is empty", i)
		}
		p := NormalizePath(d.File)
		if !files[p] {
			return fmt.Errorf("definitions[%d] (%s): file %s not declared", i, d.Name, d.File)
		}
		if _, ok := validKinds[d.Kind]; !ok {
			return fmt.Errorf("definitions[%d] (%s): unknown kind %q", i, d.Name, d.Kind)
		}
		key := FactRef{File: p, Name: d.Name}
		if defs[key] {
			return fmt.Errorf("definitions[%d]: duplicate definition %s in %s", i, d.Name, p)
		}
		defs[key] = true
		if d.Module != "" {
			if err := modules.ValidatePath(d.Module); err != nil {
				return fmt.Errorf("definitions[%d] (%s): %w", i, d.Name, err)
			}
		}
	}

	for i, e := range ff.CallEdges {
		if e.Kind != "" {
			if _, ok := validEdgeKinds[e.Kind]; !ok {
				return fmt.Errorf("callEdges[%d]: unknown kind %q", i, e.Kind)
			}
		}
		for _, ref := range []FactRef{e.From, e.To} {
			key := FactRef{File: NormalizePath(ref.File), Name: ref.Name}
			if !defs[key] {
				return fmt.Errorf("callEdges[%d]: definition %s in %s not declared", i, ref.Name, ref.File)
			}
		}
	}

	for i, im := range ff.ImportEdges {
		if !files[NormalizePath(im.From)] {
			return fmt.Errorf("importEdges[%d]: file %s not declared", i, im.From)
		}
		if !files[NormalizePath(im.To)] {
			return fmt.Errorf("importEdges[%d]: file %s not declared", i, im.To)
		}
	}

	declared := make(map[string]bool, len(ff.Modules))
	for i, m := range ff.Modules {
		if err := modules.ValidatePath(m.Path); err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		if declared[m.Path] {
			return fmt.Errorf("modules[%d]: duplicate module %s", i, m.Path)
		}
		declared[m.Path] = true
	}
	return nil
}

// IngestFacts writes a validated facts file into the store. Explicit
// module declarations and per-definition assignments take precedence;
// unassigned definitions fall back to path derivation like SCIP
// ingestion.
func (ing *Ingestor) IngestFacts(ff *FactsFile) (*Result, error) {
	result := &Result{}
	prefix := ing.opts.ModulePrefix
	if ff.Project != "" {
		prefix = ff.Project
	}

	fileIDs := make(map[string]int64, len(ff.Files))
	fileModule := make(map[int64]string, len(ff.Files))
	for _, f := range ff.Files {
		p := NormalizePath(f.Path)
		if Ignored(p, ing.opts.Ignore) {
			result.SkippedFiles++
			continue
		}
		id, err := ing.store.InsertFile(p, f.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to store file %s: %w", p, err)
		}
		fileIDs[p] = id
		fileModule[id] = DeriveModulePath(p, prefix)
		result.Files++
	}

	// Explicit module declarations first, then every path a definition
	// or file will need.
	modulePaths := make(map[string]bool)
	declared := make(map[string]FactModule, len(ff.Modules))
	for _, m := range ff.Modules {
		modulePaths[m.Path] = true
		declared[m.Path] = m
	}
	for _, p := range fileModule {
		modulePaths[p] = true
	}
	for _, d := range ff.Definitions {
		if d.Module != "" {
			modulePaths[d.Module] = true
		}
	}
	moduleIDs, err := ing.ensureDeclaredModules(modulePaths, declared)
	if err != nil {
		return nil, err
	}
	result.Modules = len(moduleIDs)

	type defAt struct {
		id     int64
		fileID int64
	}
	defIDs := make(map[FactRef]defAt, len(ff.Definitions))
	for _, d := range ff.Definitions {
		p := NormalizePath(d.File)
		fileID, ok := fileIDs[p]
		if !ok {
			continue // file ignored
		}
		def := &symbols.Definition{
			FileID:    fileID,
			Name:      d.Name,
			Kind:      validKinds[d.Kind],
			Container: d.Container,
			Line:      d.Line,
			EndLine:   d.EndLine,
			Signature: d.Signature,
			Exported:  d.Exported,
		}
		id, err := ing.store.InsertDefinition(def)
		if err != nil {
			return nil, fmt.Errorf("failed to store definition %s: %w", d.Name, err)
		}
		defIDs[FactRef{File: p, Name: d.Name}] = defAt{id: id, fileID: fileID}
		result.Definitions++

		modulePath := d.Module
		if modulePath == "" {
			modulePath = fileModule[fileID]
		}
		if err := ing.store.AssignMember(moduleIDs[modulePath], id); err != nil {
			return nil, fmt.Errorf("failed to assign definition %s: %w", d.Name, err)
		}
		result.Assigned++

		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := ing.store.SetMetadata(id, k, d.Metadata[k]); err != nil {
				return nil, fmt.Errorf("failed to store metadata %s on %s: %w", k, d.Name, err)
			}
		}
	}

	for _, e := range ff.CallEdges {
		from, okFrom := defIDs[FactRef{File: NormalizePath(e.From.File), Name: e.From.Name}]
		to, okTo := defIDs[FactRef{File: NormalizePath(e.To.File), Name: e.To.Name}]
		if !okFrom || !okTo {
			continue // endpoint in an ignored file
		}
		kind := symbols.EdgeCall
		if e.Kind != "" {
			kind = validEdgeKinds[e.Kind]
		}
		err := ing.store.InsertCallEdge(symbols.Edge{
			FromID: from.id, ToID: to.id, Kind: kind, Line: e.Line,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store call edge: %w", err)
		}
		result.CallEdges++
	}

	for _, im := range ff.ImportEdges {
		fromID, okFrom := fileIDs[NormalizePath(im.From)]
		toID, okTo := fileIDs[NormalizePath(im.To)]
		if !okFrom || !okTo || fromID == toID {
			continue
		}
		err := ing.store.InsertImportEdge(symbols.ImportEdge{
			FromFileID: fromID, ToFileID: toID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store import edge: %w", err)
		}
		result.ImportEdges++
	}

	if ing.logger != nil {
		ing.logger.Info("facts ingestion complete",
			"files", result.Files, "definitions", result.Definitions,
			"callEdges", result.CallEdges, "importEdges", result.ImportEdges,
			"modules", result.Modules, "skipped", result.SkippedFiles)
	}
	return result, nil
}

// ensureDeclaredModules materializes module paths with their ancestors,
// applying declared names, descriptions, and entities where given.
func (ing *Ingestor) ensureDeclaredModules(pathSet map[string]bool, declared map[string]FactModule) (map[string]int64, error) {
	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	paths = append(paths, modules.MissingAncestors(paths)...)
	sort.Slice(paths, func(i, j int) bool {
		di := strings.Count(paths[i], modules.PathSeparator)
		dj := strings.Count(paths[j], modules.PathSeparator)
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})

	ids := make(map[string]int64, len(paths))
	for _, p := range paths {
		var parentID int64
		if parent := modules.ParentPath(p); parent != "" {
			parentID = ids[parent]
		}
		m := &modules.Module{Path: p, ParentID: parentID}
		if decl, ok := declared[p]; ok {
			m.Name = decl.Name
			m.Description = decl.Description
			m.Entity = decl.Entity
		}
		id, err := ing.store.InsertModule(m)
		if err != nil {
			return nil, fmt.Errorf("failed to store module %s: %w", p, err)
		}
		ids[p] = id
	}
	return ids, nil
}
