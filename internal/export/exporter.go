// Package export assembles full snapshots of the derived graph and
// writes them as zstd-compressed JSON artifacts, one file per export,
// named by a fresh uuid.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"weft/internal/domains"
	"weft/internal/flows"
	"weft/internal/groups"
	"weft/internal/interactions"
	"weft/internal/modules"
	"weft/internal/store"
	"weft/internal/symbols"
	"weft/internal/version"
)

// Store is the read surface the exporter pulls a snapshot from.
type Store interface {
	ListModules() ([]*modules.Module, error)
	ListInteractions() ([]interactions.Interaction, error)
	ListFlows() ([]flows.Flow, error)
	ListFlowSteps(flowID int64) ([]flows.Step, error)
	ListDomains() ([]domains.Domain, error)
	ListDefinitions() ([]symbols.Definition, error)
	DefinitionIDsWithKey(key string) (map[int64]bool, error)
	GetStats() (*store.Stats, error)
}

// Exporter builds and writes snapshots.
type Exporter struct {
	store  Store
	logger *slog.Logger
}

// NewExporter creates an exporter over the given store.
func NewExporter(st Store, logger *slog.Logger) *Exporter {
	return &Exporter{store: st, logger: logger}
}

// Build assembles a snapshot of the current derived graph. Process
// groups are recomputed rather than read, matching their on-demand
// semantics everywhere else. Coverage is reported for the given
// aspects.
func (e *Exporter) Build(aspects []string) (*Snapshot, error) {
	mods, err := e.store.ListModules()
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	inters, err := e.store.ListInteractions()
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	flowList, err := e.store.ListFlows()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	for i := range flowList {
		steps, err := e.store.ListFlowSteps(flowList[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list steps of flow %s: %w", flowList[i].Slug, err)
		}
		flowList[i].Steps = steps
	}
	flows.AttachSubflowSlugs(flowList)

	domainList, err := e.store.ListDomains()
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	coverage, err := Coverage(e.store, aspects)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	return &Snapshot{
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Generated: time.Now().UTC().Format(time.RFC3339),
			Tool:      "weft",
			Version:   version.Version,
		},
		Modules:      mods,
		Interactions: inters,
		Flows:        flowList,
		Groups:       groups.Compute(mods, inters),
		Domains:      domainList,
		Coverage:     coverage,
		Stats:        stats,
	}, nil
}

// Coverage reports the annotated share of definitions for each aspect.
// Also used by the status command, which shows the same numbers without
// building a snapshot.
func Coverage(st Store, aspects []string) ([]AspectCoverage, error) {
	if len(aspects) == 0 {
		return nil, nil
	}
	defs, err := st.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	total := len(defs)

	out := make([]AspectCoverage, 0, len(aspects))
	for _, aspect := range aspects {
		ids, err := st.DefinitionIDsWithKey(symbols.AspectKey(aspect))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s coverage: %w", aspect, err)
		}
		c := AspectCoverage{Aspect: aspect, Covered: len(ids), Total: total}
		if total > 0 {
			c.Percent = math.Round(float64(c.Covered)/float64(total)*10000) / 100
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteJSON streams the snapshot as indented JSON, for --stdout use.
func (e *Exporter) WriteJSON(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// WriteArchive writes the snapshot to dir as <uuid>.json.zst.
// level maps to zstd levels 1..4 (fastest..best); out of range falls
// back to the codec default.
func (e *Exporter) WriteArchive(snap *Snapshot, dir string, level int) (*WriteResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := filepath.Join(dir, snap.Metadata.ID+".json.zst")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to init compressor: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		f.Close()
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to flush compressor: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	result := &WriteResult{
		Path:            path,
		RawBytes:        len(raw),
		CompressedBytes: int(info.Size()),
	}
	if e.logger != nil {
		e.logger.Info("snapshot written", "path", path,
			"rawBytes", result.RawBytes, "compressedBytes", result.CompressedBytes)
	}
	return result, nil
}

// LatestArchive returns the newest snapshot archive in dir, or ""
// when the directory is missing or holds none. The status command
// reports it as the last export.
func LatestArchive(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read export dir: %w", err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json.zst") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest, nil
}

// ReadArchive loads a compressed snapshot back, for inspection and
// tests.
func ReadArchive(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to init decompressor: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
