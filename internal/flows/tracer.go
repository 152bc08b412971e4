package flows

import (
	"errors"
	"fmt"
	"log/slog"

	"weft/internal/symbols"
)

// ErrDepthExceeded marks a trace that descended past the configured
// maximum depth. The walk is abandoned, never truncated; callers
// collect the error and move on to the next entry.
var ErrDepthExceeded = errors.New("maximum trace depth exceeded")

// TraceOptions bounds a tracer walk.
type TraceOptions struct {
	// MaxDepth is the deepest call chain a trace may follow
	// (default MaxHierarchyDepth).
	MaxDepth int
	// MaxSteps caps emitted steps per trace as a safety bound
	// (default 64).
	MaxSteps int
}

func (o TraceOptions) withDefaults() TraceOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = MaxHierarchyDepth
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 64
	}
	return o
}

// Tracer walks the symbol call graph from entry points and converts
// symbol edges into module-level flow steps.
type Tracer struct {
	graph  *Graph
	opts   TraceOptions
	logger *slog.Logger
}

// NewTracer builds a tracer over an assembled graph.
func NewTracer(g *Graph, opts TraceOptions, logger *slog.Logger) *Tracer {
	return &Tracer{graph: g, opts: opts.withDefaults(), logger: logger}
}

// Trace is the raw result of one walk: ordered steps plus diagnostics
// the synthesizer folds into tier assignment.
type Trace struct {
	EntryDefinitionID int64  `json:"entryDefinitionId"`
	EntryModuleID     int64  `json:"entryModuleId"`
	Steps             []Step `json:"steps"`
	// MissingInteractions counts cross-module edges seen during the
	// walk with no recorded interaction to attach a step to.
	MissingInteractions int `json:"missingInteractions"`
}

// Trace walks outgoing call edges depth-first from the entry
// definition. Invariants:
//
//   - A definition already visited in this trace terminates that
//     branch at the repeat; cycles never loop.
//   - Descending past MaxDepth fails the whole trace with
//     ErrDepthExceeded.
//   - Steps are deduplicated by (fromDefinition, toDefinition) and
//     consecutive steps never repeat a module pair.
//
// Intra-module edges emit no step but are walked through, so a flow
// can cross modules via private helpers.
func (t *Tracer) Trace(entryID int64) (*Trace, error) {
	entry, ok := t.graph.Definition(entryID)
	if !ok {
		return nil, fmt.Errorf("entry definition %d not found", entryID)
	}
	if entry.ModuleID == 0 {
		return nil, fmt.Errorf("entry definition %d is not assigned to a module", entryID)
	}

	tr := &Trace{
		EntryDefinitionID: entryID,
		EntryModuleID:     entry.ModuleID,
	}
	w := &walk{
		tracer:    t,
		trace:     tr,
		visited:   map[int64]bool{entryID: true},
		seenPairs: make(map[[2]int64]bool),
	}
	if err := w.descend(entryID, 0); err != nil {
		return nil, fmt.Errorf("trace from definition %d (%s): %w", entryID, entry.Name, err)
	}

	for i := range tr.Steps {
		tr.Steps[i].Seq = i
	}
	return tr, nil
}

type walk struct {
	tracer    *Tracer
	trace     *Trace
	visited   map[int64]bool
	seenPairs map[[2]int64]bool
	// lastPair is the module pair of the most recently emitted step,
	// for the no-consecutive-duplicates invariant.
	lastPair [2]int64
}

func (w *walk) descend(defID int64, depth int) error {
	for _, edge := range w.tracer.graph.Outgoing(defID) {
		if edge.Kind == symbols.EdgeUse {
			// Usage edges evidence interactions but are not control
			// flow; only calls extend a trace.
			continue
		}
		if w.visited[edge.ToID] {
			continue
		}
		if depth+1 > w.tracer.opts.MaxDepth {
			return fmt.Errorf("depth %d at definition %d: %w",
				depth+1, edge.ToID, ErrDepthExceeded)
		}

		w.visited[edge.ToID] = true
		w.emit(defID, edge.ToID)
		if len(w.trace.Steps) >= w.tracer.opts.MaxSteps {
			return nil
		}
		if err := w.descend(edge.ToID, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// emit converts one symbol edge into a step when it crosses modules
// and the module pair has a recorded interaction.
func (w *walk) emit(fromID, toID int64) {
	pair := [2]int64{fromID, toID}
	if w.seenPairs[pair] {
		return
	}
	w.seenPairs[pair] = true

	fromModule := w.tracer.graph.ModuleOf(fromID)
	toModule := w.tracer.graph.ModuleOf(toID)
	if fromModule == 0 || toModule == 0 || fromModule == toModule {
		return
	}

	in := w.tracer.graph.InteractionFor(fromModule, toModule)
	if in == nil {
		// Observed syntactically but never gated in; the verifier
		// reports these too.
		w.trace.MissingInteractions++
		return
	}

	modulePair := [2]int64{fromModule, toModule}
	if len(w.trace.Steps) > 0 && w.lastPair == modulePair {
		return
	}

	w.trace.Steps = append(w.trace.Steps, Step{
		InteractionID:    in.ID,
		FromDefinitionID: fromID,
		ToDefinitionID:   toID,
	})
	w.lastPair = modulePair
}
