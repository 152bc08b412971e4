package annotate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"weft/internal/classify"
	"weft/internal/modules"
	"weft/internal/symbols"
)

func TestRetryQueueThreshold(t *testing.T) {
	q := NewRetryQueue[PairKey]()
	key := PairKey{FromID: 1, ToID: 2}

	for i := 0; i < 3; i++ {
		q.Add(key, fmt.Sprintf("failure %d", i))
	}

	if got := q.GetRetryable(3); len(got) != 0 {
		t.Errorf("GetRetryable(3) = %v, want empty after 3 attempts", got)
	}
	retryable := q.GetRetryable(4)
	if len(retryable) != 1 || retryable[0] != key {
		t.Errorf("GetRetryable(4) = %v, want [%v]", retryable, key)
	}
	if got := q.Exhausted(3); len(got) != 1 {
		t.Errorf("Exhausted(3) = %v, want the saturated key", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}

	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", q.Len())
	}
}

func TestRetryQueueMessageOverwrite(t *testing.T) {
	q := NewRetryQueue[AspectKey]()
	key := AspectKey{DefinitionID: 9, Aspect: "purpose"}

	q.Add(key, "first")
	q.Add(key, "second")

	if q.Attempts(key) != 2 {
		t.Errorf("Attempts = %d, want 2", q.Attempts(key))
	}
	if q.LastError(key) != "second" {
		t.Errorf("LastError = %q, want latest message", q.LastError(key))
	}
	if q.Attempts(AspectKey{DefinitionID: 10, Aspect: "purpose"}) != 0 {
		t.Error("unknown key should report zero attempts")
	}
}

// memStore is an in-memory Store for scheduler tests.
type memStore struct {
	mu     sync.Mutex
	defs   []symbols.Definition
	mods   []*modules.Module
	edges  map[int64][]symbols.Edge
	meta   map[int64]symbols.MetadataSet
	writes int
}

func newMemStore(defs []symbols.Definition, edges map[int64][]symbols.Edge) *memStore {
	return &memStore{
		defs:  defs,
		edges: edges,
		meta:  make(map[int64]symbols.MetadataSet),
	}
}

func (m *memStore) ListDefinitions() ([]symbols.Definition, error) { return m.defs, nil }
func (m *memStore) ListModules() ([]*modules.Module, error)        { return m.mods, nil }

func (m *memStore) GetRelationshipEdges(id int64) ([]symbols.Edge, error) {
	return m.edges[id], nil
}

func (m *memStore) GetMetadata(id int64) (symbols.MetadataSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(symbols.MetadataSet, len(m.meta[id]))
	for k, v := range m.meta[id] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SetMetadata(id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[id] == nil {
		m.meta[id] = make(symbols.MetadataSet)
	}
	m.meta[id][key] = value
	m.writes++
	return nil
}

// recordingClassifier wraps Fake and keeps the contexts it saw.
type recordingClassifier struct {
	classify.Fake
	mu       sync.Mutex
	contexts [][]classify.SymbolContext
}

func (r *recordingClassifier) Classify(ctx context.Context, batch []classify.SymbolContext, aspects []string) ([]classify.Result, error) {
	r.mu.Lock()
	r.contexts = append(r.contexts, batch)
	r.mu.Unlock()
	return r.Fake.Classify(ctx, batch, aspects)
}

// callChain builds A(1) -> B(2) -> C(3).
func callChain() ([]symbols.Definition, map[int64][]symbols.Edge) {
	defs := []symbols.Definition{
		{ID: 1, Name: "HandleRequest", Kind: symbols.KindFunction, Exported: true},
		{ID: 2, Name: "loadAccount", Kind: symbols.KindFunction},
		{ID: 3, Name: "queryRow", Kind: symbols.KindFunction},
	}
	edges := map[int64][]symbols.Edge{
		1: {{FromID: 1, ToID: 2, Kind: symbols.EdgeCall}},
		2: {{FromID: 2, ToID: 3, Kind: symbols.EdgeCall}},
	}
	return defs, edges
}

func TestSchedulerAnnotatesBottomUp(t *testing.T) {
	defs, edges := callChain()
	st := newMemStore(defs, edges)
	rec := &recordingClassifier{}

	sched := New(st, rec, Options{Aspects: []string{"purpose"}, BatchSize: 40}, nil)
	summary, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !summary.Converged {
		t.Error("run should converge once everything is annotated")
	}
	if summary.Annotated != 3 {
		t.Errorf("annotated = %d, want 3", summary.Annotated)
	}
	if len(summary.Iterations) != 3 {
		t.Fatalf("iterations = %d, want 3 (one definition unblocks per round)", len(summary.Iterations))
	}

	// Leaves first: queryRow has no callees so it goes alone in round 1.
	first := rec.Batches[0]
	if len(first) != 1 || first[0] != 3 {
		t.Errorf("first batch = %v, want [3]", first)
	}
	second := rec.Batches[1]
	if len(second) != 1 || second[0] != 2 {
		t.Errorf("second batch = %v, want [2]", second)
	}

	// loadAccount's context must carry queryRow's fresh annotation.
	ctx2 := rec.contexts[1][0]
	if len(ctx2.Dependencies) != 1 || ctx2.Dependencies[0].Name != "queryRow" {
		t.Fatalf("dependency context = %+v, want annotated queryRow", ctx2.Dependencies)
	}
	if ctx2.Dependencies[0].Aspects["purpose"] == "" {
		t.Error("dependency aspects should include the callee's purpose")
	}

	for _, d := range defs {
		meta, _ := st.GetMetadata(d.ID)
		if !meta.HasAspect("purpose") {
			t.Errorf("definition %d not annotated", d.ID)
		}
	}
}

func TestSchedulerTrivialReadiness(t *testing.T) {
	defs := []symbols.Definition{
		{ID: 1, Name: "Alpha", Kind: symbols.KindFunction},
		{ID: 2, Name: "Beta", Kind: symbols.KindFunction},
	}
	st := newMemStore(defs, nil)
	fake := &classify.Fake{}

	summary, err := New(st, fake, Options{Aspects: []string{"purpose", "role"}}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Annotated != 4 {
		t.Errorf("annotated = %d, want 4 (2 defs x 2 aspects)", summary.Annotated)
	}
	for _, cov := range summary.Coverage {
		if cov.Covered != 2 || cov.Percent != 100 {
			t.Errorf("coverage %s = %+v, want full", cov.Aspect, cov)
		}
	}
}

func TestSchedulerRetryBudgetAndBlockedDependents(t *testing.T) {
	// X(3) keeps failing; Y(4) calls X and must never be dispatched.
	defs := []symbols.Definition{
		{ID: 3, Name: "flaky", Kind: symbols.KindFunction},
		{ID: 4, Name: "caller", Kind: symbols.KindFunction},
	}
	edges := map[int64][]symbols.Edge{
		4: {{FromID: 4, ToID: 3, Kind: symbols.EdgeCall}},
	}
	st := newMemStore(defs, edges)
	fake := &classify.Fake{FailFor: map[int64]string{3: "model refused"}}

	summary, err := New(st, fake, Options{
		Aspects:     []string{"purpose"},
		MaxAttempts: 2, MaxIterations: 10,
	}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Annotated != 0 {
		t.Errorf("annotated = %d, want 0", summary.Annotated)
	}
	if summary.Exhausted != 1 {
		t.Errorf("exhausted = %d, want 1 (flaky past its budget)", summary.Exhausted)
	}
	for _, batch := range fake.Batches {
		for _, id := range batch {
			if id == 4 {
				t.Fatal("dependent of a failing definition must never become ready")
			}
		}
	}
	if len(fake.Batches) != 2 {
		t.Errorf("dispatched batches = %d, want 2 (attempt budget)", len(fake.Batches))
	}
}

func TestSchedulerDryRun(t *testing.T) {
	defs, edges := callChain()
	st := newMemStore(defs, edges)
	fake := &classify.Fake{}

	summary, err := New(st, fake, Options{Aspects: []string{"purpose"}, DryRun: true}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.writes != 0 {
		t.Errorf("dry run performed %d writes", st.writes)
	}
	if fake.CallCount() != 0 {
		t.Error("dry run must not dispatch batches")
	}
	if len(summary.Iterations) != 1 || summary.Iterations[0].Ready != 1 {
		t.Errorf("iterations = %+v, want one readiness report", summary.Iterations)
	}
	if !summary.DryRun {
		t.Error("summary should be marked dry-run")
	}
}

func TestSchedulerBatchTransportFailure(t *testing.T) {
	defs := []symbols.Definition{{ID: 1, Name: "Solo", Kind: symbols.KindFunction}}
	st := newMemStore(defs, nil)
	fake := &classify.Fake{Err: fmt.Errorf("network down")}

	summary, err := New(st, fake, Options{
		Aspects: []string{"purpose"}, MaxAttempts: 1, MaxIterations: 5,
	}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("transport failures should not abort the run: %v", err)
	}
	if summary.Annotated != 0 || summary.Exhausted != 1 {
		t.Errorf("summary = %+v, want 0 annotated, 1 exhausted", summary)
	}
}

func TestSchedulerWritesOnlyMissingAspects(t *testing.T) {
	defs := []symbols.Definition{{ID: 1, Name: "Keep", Kind: symbols.KindFunction}}
	st := newMemStore(defs, nil)
	if err := st.SetMetadata(1, symbols.AspectKey("role"), "preset"); err != nil {
		t.Fatal(err)
	}
	st.writes = 0

	fake := &classify.Fake{}
	_, err := New(st, fake, Options{Aspects: []string{"purpose", "role"}}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	meta, _ := st.GetMetadata(1)
	if meta[symbols.AspectKey("role")] != "preset" {
		t.Errorf("existing annotation overwritten: %q", meta[symbols.AspectKey("role")])
	}
	if st.writes != 1 {
		t.Errorf("writes = %d, want 1 (purpose only)", st.writes)
	}
}
