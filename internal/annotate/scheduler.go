// Package annotate schedules dependency-ordered semantic annotation.
// A definition becomes ready for an aspect once every definition it
// calls already carries that aspect, so annotations build bottom-up
// through the call graph. Ready definitions are batched to a
// classifier; failures retry with a bounded budget; the loop stops at
// a fixpoint (no coverage progress) or the iteration cap.
package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"weft/internal/classify"
	"weft/internal/modules"
	"weft/internal/symbols"
)

// Store is the slice of the fact store the scheduler uses.
type Store interface {
	ListDefinitions() ([]symbols.Definition, error)
	ListModules() ([]*modules.Module, error)
	GetRelationshipEdges(definitionID int64) ([]symbols.Edge, error)
	GetMetadata(definitionID int64) (symbols.MetadataSet, error)
	SetMetadata(definitionID int64, key, value string) error
}

// Options tunes one scheduler run. Zero values take the defaults.
type Options struct {
	Aspects       []string
	BatchSize     int
	MaxIterations int
	MaxAttempts   int
	Concurrency   int
	// DryRun computes readiness and dispatches nothing.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if len(o.Aspects) == 0 {
		o.Aspects = []string{"purpose", "domain", "role"}
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 40
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// CoverageInfo reports annotation coverage for one aspect.
type CoverageInfo struct {
	Aspect  string  `json:"aspect"`
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// IterationSummary describes one scheduling iteration.
type IterationSummary struct {
	Iteration  int            `json:"iteration"`
	Ready      int            `json:"ready"`
	Dispatched int            `json:"dispatched"`
	Annotated  int            `json:"annotated"`
	Failed     int            `json:"failed"`
	Coverage   []CoverageInfo `json:"coverage"`
}

// RunSummary is the JSON-serializable outcome of a full run.
type RunSummary struct {
	// RunID names the run in logs and serialized summaries.
	RunID      string             `json:"runId"`
	Iterations []IterationSummary `json:"iterations"`
	Coverage   []CoverageInfo     `json:"coverage"`
	Annotated  int                `json:"annotated"`
	// Exhausted counts (definition, aspect) pairs dropped after the
	// attempt budget.
	Exhausted int  `json:"exhausted"`
	Converged bool `json:"converged"`
	DryRun    bool `json:"dryRun,omitempty"`
}

// Scheduler drives the annotation loop.
type Scheduler struct {
	store      Store
	classifier classify.Classifier
	opts       Options
	logger     *slog.Logger
	retries    *RetryQueue[AspectKey]
}

// New builds a scheduler. The retry queue starts empty and is owned by
// this value; it never outlives the run.
func New(st Store, classifier classify.Classifier, opts Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		classifier: classifier,
		opts:       opts.withDefaults(),
		logger:     logger,
		retries:    NewRetryQueue[AspectKey](),
	}
}

// workItem is one ready definition with the aspects it still needs.
type workItem struct {
	def     symbols.Definition
	aspects []string
}

// Run executes the scheduling loop until convergence, the iteration
// cap, or context cancellation.
func (s *Scheduler) Run(ctx context.Context) (*RunSummary, error) {
	defs, err := s.store.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defIndex := make(map[int64]symbols.Definition, len(defs))
	for _, d := range defs {
		defIndex[d.ID] = d
	}
	modulePaths, err := s.modulePathIndex()
	if err != nil {
		return nil, err
	}
	callees, err := s.calleeIndex(defs)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: uuid.NewString(), DryRun: s.opts.DryRun}
	lastCovered := -1

	for iteration := 1; iteration <= s.opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := s.metadataIndex(defs)
		if err != nil {
			return nil, err
		}

		ready := s.readyItems(defs, callees, meta)
		if len(ready) == 0 {
			summary.Converged = true
			break
		}

		it := IterationSummary{Iteration: iteration, Ready: len(ready)}
		if !s.opts.DryRun {
			annotated, failed, err := s.dispatch(ctx, ready, defIndex, callees, meta, modulePaths)
			if err != nil {
				return nil, err
			}
			it.Dispatched = len(ready)
			it.Annotated = annotated
			it.Failed = failed
			summary.Annotated += annotated
		}

		// Coverage is recomputed from a fresh scan rather than
		// accumulated, so external writes during the run are counted.
		coverage, covered, err := s.coverage(defs)
		if err != nil {
			return nil, err
		}
		it.Coverage = coverage
		summary.Iterations = append(summary.Iterations, it)

		if s.logger != nil {
			s.logger.Info("annotation iteration complete",
				"run", summary.RunID, "iteration", iteration, "ready", it.Ready,
				"annotated", it.Annotated, "failed", it.Failed)
		}

		if s.opts.DryRun || covered <= lastCovered {
			summary.Converged = true
			break
		}
		lastCovered = covered
	}

	final, _, err := s.coverage(defs)
	if err != nil {
		return nil, err
	}
	summary.Coverage = final
	summary.Exhausted = len(s.retries.Exhausted(s.opts.MaxAttempts))
	return summary, nil
}

func (s *Scheduler) modulePathIndex() (map[int64]string, error) {
	mods, err := s.store.ListModules()
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	paths := make(map[int64]string, len(mods))
	for _, m := range mods {
		paths[m.ID] = m.Path
	}
	return paths, nil
}

// calleeIndex maps each definition to the ids it calls. Self-edges are
// dropped: a recursive function must not gate its own readiness.
func (s *Scheduler) calleeIndex(defs []symbols.Definition) (map[int64][]int64, error) {
	callees := make(map[int64][]int64, len(defs))
	for _, d := range defs {
		edges, err := s.store.GetRelationshipEdges(d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load edges for definition %d: %w", d.ID, err)
		}
		for _, e := range edges {
			if e.Kind != symbols.EdgeCall || e.ToID == d.ID {
				continue
			}
			callees[d.ID] = append(callees[d.ID], e.ToID)
		}
	}
	return callees, nil
}

func (s *Scheduler) metadataIndex(defs []symbols.Definition) (map[int64]symbols.MetadataSet, error) {
	meta := make(map[int64]symbols.MetadataSet, len(defs))
	for _, d := range defs {
		m, err := s.store.GetMetadata(d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load metadata for definition %d: %w", d.ID, err)
		}
		meta[d.ID] = m
	}
	return meta, nil
}

// readyItems selects the definitions with at least one aspect that is
// missing, dependency-satisfied, and still inside the retry budget.
// Definitions with no outgoing calls are trivially ready.
func (s *Scheduler) readyItems(defs []symbols.Definition, callees map[int64][]int64, meta map[int64]symbols.MetadataSet) []workItem {
	var items []workItem
	for _, d := range defs {
		var needed []string
		for _, aspect := range s.opts.Aspects {
			if meta[d.ID].HasAspect(aspect) {
				continue
			}
			if s.retries.Attempts(AspectKey{DefinitionID: d.ID, Aspect: aspect}) >= s.opts.MaxAttempts {
				continue
			}
			if !dependenciesSatisfied(callees[d.ID], aspect, meta) {
				continue
			}
			needed = append(needed, aspect)
		}
		if len(needed) > 0 {
			items = append(items, workItem{def: d, aspects: needed})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].def.ID < items[j].def.ID })
	return items
}

func dependenciesSatisfied(callees []int64, aspect string, meta map[int64]symbols.MetadataSet) bool {
	for _, id := range callees {
		if !meta[id].HasAspect(aspect) {
			return false
		}
	}
	return true
}

// dispatch sends the ready items to the classifier in bounded-parallel
// batches and writes successful annotations back one by one. The
// errgroup Wait is the iteration barrier: no readiness computation
// sees a half-finished iteration.
func (s *Scheduler) dispatch(ctx context.Context, items []workItem, defIndex map[int64]symbols.Definition, callees map[int64][]int64, meta map[int64]symbols.MetadataSet, modulePaths map[int64]string) (int, int, error) {
	var batches [][]workItem
	for start := 0; start < len(items); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	var (
		mu        sync.Mutex
		annotated int
		failed    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			contexts := make([]classify.SymbolContext, len(batch))
			aspectSet := make(map[string]bool)
			for i, it := range batch {
				contexts[i] = s.symbolContext(it.def, defIndex, callees[it.def.ID], meta, modulePaths)
				for _, a := range it.aspects {
					aspectSet[a] = true
				}
			}
			aspects := make([]string, 0, len(aspectSet))
			for a := range aspectSet {
				aspects = append(aspects, a)
			}
			sort.Strings(aspects)

			results, cerr := s.classifier.Classify(gctx, contexts, aspects)
			if cerr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Transport failure: every pending aspect in the batch
				// burns one attempt; other batches keep going.
				mu.Lock()
				for _, it := range batch {
					for _, a := range it.aspects {
						s.retries.Add(AspectKey{DefinitionID: it.def.ID, Aspect: a}, cerr.Error())
						failed++
					}
				}
				mu.Unlock()
				if s.logger != nil {
					s.logger.Warn("batch classification failed", "symbols", len(batch), "error", cerr)
				}
				return nil
			}

			for i, res := range results {
				if i >= len(batch) {
					break
				}
				it := batch[i]
				if res.Err != "" {
					mu.Lock()
					for _, a := range it.aspects {
						s.retries.Add(AspectKey{DefinitionID: it.def.ID, Aspect: a}, res.Err)
						failed++
					}
					mu.Unlock()
					continue
				}
				for _, a := range it.aspects {
					value := res.Aspects[a]
					if value == "" {
						mu.Lock()
						s.retries.Add(AspectKey{DefinitionID: it.def.ID, Aspect: a}, "classifier returned no value")
						failed++
						mu.Unlock()
						continue
					}
					if werr := s.store.SetMetadata(it.def.ID, symbols.AspectKey(a), value); werr != nil {
						return fmt.Errorf("failed to write annotation for definition %d: %w", it.def.ID, werr)
					}
					mu.Lock()
					annotated++
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		return 0, 0, werr
	}
	return annotated, failed, nil
}

// symbolContext assembles the classifier view of one definition,
// including the already-annotated aspects of its callees.
func (s *Scheduler) symbolContext(d symbols.Definition, defIndex map[int64]symbols.Definition, callees []int64, meta map[int64]symbols.MetadataSet, modulePaths map[int64]string) classify.SymbolContext {
	sc := classify.SymbolContext{
		DefinitionID: d.ID,
		Name:         d.Name,
		Kind:         string(d.Kind),
		Signature:    d.Signature,
		ModulePath:   modulePaths[d.ModuleID],
	}
	for _, id := range callees {
		aspects := make(map[string]string)
		for key, value := range meta[id] {
			if a := symbols.AspectFromKey(key); a != "" {
				aspects[a] = value
			}
		}
		if len(aspects) == 0 {
			continue
		}
		sc.Dependencies = append(sc.Dependencies, classify.Dependency{
			Name:    defIndex[id].Name,
			Aspects: aspects,
		})
	}
	return sc
}

// coverage rescans metadata and reports per-aspect counts plus the
// total covered slots used for the progress check.
func (s *Scheduler) coverage(defs []symbols.Definition) ([]CoverageInfo, int, error) {
	meta, err := s.metadataIndex(defs)
	if err != nil {
		return nil, 0, err
	}
	infos := make([]CoverageInfo, 0, len(s.opts.Aspects))
	totalCovered := 0
	for _, aspect := range s.opts.Aspects {
		covered := 0
		for _, d := range defs {
			if meta[d.ID].HasAspect(aspect) {
				covered++
			}
		}
		percent := 0.0
		if len(defs) > 0 {
			percent = math.Round(float64(covered)/float64(len(defs))*10000) / 100
		}
		infos = append(infos, CoverageInfo{
			Aspect:  aspect,
			Covered: covered,
			Total:   len(defs),
			Percent: percent,
		})
		totalCovered += covered
	}
	return infos, totalCovered, nil
}
