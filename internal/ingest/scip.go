// Package ingest loads raw facts into the store: SCIP protobuf
// indexes produced by language indexers, and YAML/JSON facts files for
// parser-agnostic pipelines. Module paths derive from file layout
// unless assigned explicitly.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"weft/internal/modules"
	"weft/internal/symbols"
)

// defaultMaxFunctionLines bounds a function body when the index does
// not record an enclosing range (scip-go leaves it unset). Conservative
// so callees in long functions are not missed.
const defaultMaxFunctionLines = 500

// Store is the slice of the fact store ingestion writes through.
type Store interface {
	InsertFile(path, language string) (int64, error)
	InsertDefinition(d *symbols.Definition) (int64, error)
	InsertCallEdge(e symbols.Edge) error
	InsertImportEdge(e symbols.ImportEdge) error
	InsertModule(m *modules.Module) (int64, error)
	AssignMember(moduleID, definitionID int64) error
	SetMetadata(definitionID int64, key, value string) error
}

// Options tunes an ingestion pass.
type Options struct {
	// ModulePrefix is prepended to every derived module path.
	ModulePrefix string
	// Ignore lists path fragments excluded from ingestion.
	Ignore []string
}

// Result reports what one ingestion pass stored.
type Result struct {
	Files        int `json:"files"`
	Definitions  int `json:"definitions"`
	CallEdges    int `json:"callEdges"`
	ImportEdges  int `json:"importEdges"`
	Modules      int `json:"modules"`
	Assigned     int `json:"assigned"`
	SkippedFiles int `json:"skippedFiles"`
}

// Ingestor maps external fact sources into the store.
type Ingestor struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// New builds an ingestor.
func New(st Store, opts Options, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: st, opts: opts, logger: logger}
}

// LoadSCIPIndex reads and parses a SCIP index file.
func LoadSCIPIndex(path string) (*scippb.Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("scip index not found at %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scip index %s: %w", path, err)
	}
	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse scip index %s: %w", path, err)
	}
	return &index, nil
}

// IngestSCIPFile loads the index at path and ingests it.
func (ing *Ingestor) IngestSCIPFile(path string) (*Result, error) {
	index, err := LoadSCIPIndex(path)
	if err != nil {
		return nil, err
	}
	return ing.IngestSCIP(index)
}

// IngestFactsFile parses the facts file at path and ingests it.
func (ing *Ingestor) IngestFactsFile(path string) (*Result, error) {
	ff, err := ParseFactsFile(path)
	if err != nil {
		return nil, err
	}
	return ing.IngestFacts(ff)
}

// docFacts carries the per-document state between ingestion passes.
type docFacts struct {
	doc    *scippb.Document
	fileID int64
}

// IngestSCIP maps a SCIP index into files, definitions, call/usage
// edges, and import edges, then derives module paths from file layout
// and assigns every definition to its file's module.
func (ing *Ingestor) IngestSCIP(index *scippb.Index) (*Result, error) {
	result := &Result{}

	info := make(map[string]*scippb.SymbolInformation)
	for _, doc := range index.Documents {
		for _, sym := range doc.Symbols {
			info[sym.Symbol] = sym
		}
	}
	for _, sym := range index.ExternalSymbols {
		info[sym.Symbol] = sym
	}

	// Pass 1: files and definitions.
	var docs []docFacts
	symToDef := make(map[string]int64)
	symToFile := make(map[string]int64)
	symKind := make(map[string]symbols.Kind)
	fileModule := make(map[int64]string)

	for _, doc := range index.Documents {
		rel := NormalizePath(doc.RelativePath)
		if Ignored(rel, ing.opts.Ignore) {
			result.SkippedFiles++
			continue
		}

		fileID, err := ing.store.InsertFile(rel, doc.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to store file %s: %w", rel, err)
		}
		result.Files++
		fileModule[fileID] = DeriveModulePath(rel, ing.opts.ModulePrefix)
		docs = append(docs, docFacts{doc: doc, fileID: fileID})

		for _, occ := range doc.Occurrences {
			if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
				continue
			}
			if isLocalSymbol(occ.Symbol) {
				continue
			}
			if _, dup := symToDef[occ.Symbol]; dup {
				continue
			}

			name, container := symbolName(occ.Symbol)
			si := info[occ.Symbol]
			if si != nil && si.DisplayName != "" {
				name = si.DisplayName
			}
			if name == "" {
				continue
			}
			start, end := occurrenceLines(occ)

			def := &symbols.Definition{
				FileID:    fileID,
				Name:      name,
				Kind:      kindFor(si, occ.Symbol),
				Container: container,
				Line:      start,
				EndLine:   end,
				Exported:  isExported(name, doc.Language),
			}
			id, err := ing.store.InsertDefinition(def)
			if err != nil {
				return nil, fmt.Errorf("failed to store definition %s: %w", name, err)
			}
			symToDef[occ.Symbol] = id
			symToFile[occ.Symbol] = fileID
			symKind[occ.Symbol] = def.Kind
			result.Definitions++
		}
	}

	// Pass 2: symbol-level edges and file-level imports.
	for _, df := range docs {
		ranges := functionRanges(df.doc, symKind)
		importSeen := make(map[int64]bool)

		for _, occ := range df.doc.Occurrences {
			if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 {
				continue
			}
			if isLocalSymbol(occ.Symbol) {
				continue
			}
			targetID, known := symToDef[occ.Symbol]
			if !known {
				continue // defined outside the index
			}

			line := occurrenceLine(occ)
			caller := enclosingFunction(ranges, line)
			if caller != "" && caller != occ.Symbol {
				kind := symbols.EdgeUse
				if symKind[occ.Symbol].IsCallable() {
					kind = symbols.EdgeCall
				}
				edge := symbols.Edge{
					FromID: symToDef[caller],
					ToID:   targetID,
					Kind:   kind,
					Line:   line,
				}
				if err := ing.store.InsertCallEdge(edge); err != nil {
					return nil, fmt.Errorf("failed to store call edge: %w", err)
				}
				result.CallEdges++
			}

			if toFile := symToFile[occ.Symbol]; toFile != df.fileID && !importSeen[toFile] {
				importSeen[toFile] = true
				err := ing.store.InsertImportEdge(symbols.ImportEdge{
					FromFileID: df.fileID,
					ToFileID:   toFile,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to store import edge: %w", err)
				}
				result.ImportEdges++
			}
		}
	}

	// Pass 3: derive modules and assign members.
	pathSet := make(map[string]bool, len(fileModule))
	for _, p := range fileModule {
		pathSet[p] = true
	}
	moduleIDs, err := ing.ensureDeclaredModules(pathSet, nil)
	if err != nil {
		return nil, err
	}
	result.Modules = len(moduleIDs)

	for sym, defID := range symToDef {
		modulePath := fileModule[symToFile[sym]]
		if err := ing.store.AssignMember(moduleIDs[modulePath], defID); err != nil {
			return nil, fmt.Errorf("failed to assign definition %d: %w", defID, err)
		}
		result.Assigned++
	}

	if ing.logger != nil {
		ing.logger.Info("scip ingestion complete",
			"files", result.Files, "definitions", result.Definitions,
			"callEdges", result.CallEdges, "importEdges", result.ImportEdges,
			"modules", result.Modules, "skipped", result.SkippedFiles)
	}
	return result, nil
}

// funcRange is one callable definition's line span within a document.
type funcRange struct {
	symbol string
	start  int
	end    int
}

// functionRanges computes the line span of every callable definition
// in a document. When the index records no enclosing range, a
// function's body is assumed to run to the next definition.
func functionRanges(doc *scippb.Document, symKind map[string]symbols.Kind) []funcRange {
	var ranges []funcRange
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
			continue
		}
		if !symKind[occ.Symbol].IsCallable() {
			continue
		}
		start, end := occurrenceLines(occ)
		if len(occ.EnclosingRange) >= 3 {
			start = int(occ.EnclosingRange[0])
			if len(occ.EnclosingRange) >= 4 {
				end = int(occ.EnclosingRange[2])
			} else {
				end = start
			}
		} else {
			end = 0 // inferred below
		}
		ranges = append(ranges, funcRange{symbol: occ.Symbol, start: start, end: end})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := range ranges {
		if ranges[i].end != 0 {
			continue
		}
		if i+1 < len(ranges) {
			ranges[i].end = ranges[i+1].start - 1
		} else {
			ranges[i].end = ranges[i].start + defaultMaxFunctionLines
		}
	}
	return ranges
}

// enclosingFunction returns the symbol of the function whose span
// contains the given line, or "".
func enclosingFunction(ranges []funcRange, line int) string {
	for i := len(ranges) - 1; i >= 0; i-- {
		if ranges[i].start <= line && line <= ranges[i].end {
			return ranges[i].symbol
		}
	}
	return ""
}

func isLocalSymbol(symbolID string) bool {
	return strings.HasPrefix(symbolID, "local ")
}

// symbolName extracts the display name and container from a SCIP
// symbol identifier. The descriptor after the last '/' carries the
// name: "...`pkg`/Engine#Close()." names method Close on Engine.
func symbolName(symbolID string) (name, container string) {
	desc := symbolID
	if i := strings.LastIndex(desc, "/"); i >= 0 {
		desc = desc[i+1:]
	}
	desc = strings.TrimSuffix(desc, ".")
	desc = strings.TrimSuffix(desc, "()")
	if i := strings.LastIndex(desc, "#"); i >= 0 {
		container = desc[:i]
		name = desc[i+1:]
		if name == "" {
			// Plain type descriptor like "Engine#".
			name = container
			container = ""
		}
		return name, container
	}
	return desc, ""
}

// kindFor maps SCIP symbol kinds to definition kinds, falling back to
// the descriptor shape for indexers that leave Kind unset.
func kindFor(si *scippb.SymbolInformation, symbolID string) symbols.Kind {
	if si != nil {
		switch si.Kind {
		case scippb.SymbolInformation_Function:
			return symbols.KindFunction
		case scippb.SymbolInformation_Method, scippb.SymbolInformation_StaticMethod:
			return symbols.KindMethod
		case scippb.SymbolInformation_Class, scippb.SymbolInformation_Struct:
			return symbols.KindClass
		case scippb.SymbolInformation_Interface, scippb.SymbolInformation_Trait, scippb.SymbolInformation_Protocol:
			return symbols.KindInterface
		case scippb.SymbolInformation_Enum:
			return symbols.KindEnum
		case scippb.SymbolInformation_Type, scippb.SymbolInformation_TypeAlias:
			return symbols.KindType
		case scippb.SymbolInformation_Constant:
			return symbols.KindConstant
		case scippb.SymbolInformation_Variable, scippb.SymbolInformation_Field,
			scippb.SymbolInformation_Property:
			return symbols.KindVariable
		}
	}
	// Functions carry "()" in the descriptor; bare "#" descriptors are
	// types.
	if strings.Contains(symbolID, "().") {
		return symbols.KindFunction
	}
	if strings.HasSuffix(symbolID, "#") {
		return symbols.KindType
	}
	return symbols.KindVariable
}

// isExported applies per-language visibility conventions: Go exports
// by case, most other languages hide underscore prefixes.
func isExported(name, language string) bool {
	if name == "" {
		return false
	}
	if strings.EqualFold(language, "go") {
		r := []rune(name)[0]
		return unicode.IsUpper(r)
	}
	return !strings.HasPrefix(name, "_")
}

func occurrenceLine(occ *scippb.Occurrence) int {
	if len(occ.Range) == 0 {
		return 0
	}
	return int(occ.Range[0])
}

// occurrenceLines parses a SCIP range: [startLine, startChar, endChar]
// for single-line, [startLine, startChar, endLine, endChar] otherwise.
func occurrenceLines(occ *scippb.Occurrence) (start, end int) {
	if len(occ.Range) == 0 {
		return 0, 0
	}
	start = int(occ.Range[0])
	end = start
	if len(occ.Range) >= 4 {
		end = int(occ.Range[2])
	}
	return start, end
}
