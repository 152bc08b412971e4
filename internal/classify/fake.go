package classify

import (
	"context"
	"sync"
)

// Fake is a scripted classifier for tests and offline runs. Unscripted
// symbols succeed with a placeholder value per requested aspect, so a
// zero-value Fake annotates everything it is given.
type Fake struct {
	mu sync.Mutex

	// Script maps definition id to the aspects returned for it.
	Script map[int64]map[string]string
	// FailFor maps definition ids to a per-symbol error message.
	FailFor map[int64]string
	// Err, when set, fails every batch at the transport level.
	Err error

	// Batches records the definition ids of every dispatched batch.
	Batches [][]int64
}

func (f *Fake) Classify(ctx context.Context, batch []SymbolContext, aspects []string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, len(batch))
	for i, sym := range batch {
		ids[i] = sym.DefinitionID
	}
	f.Batches = append(f.Batches, ids)

	if f.Err != nil {
		return nil, f.Err
	}

	results := make([]Result, len(batch))
	for i, sym := range batch {
		if msg, ok := f.FailFor[sym.DefinitionID]; ok {
			results[i] = Result{DefinitionID: sym.DefinitionID, Err: msg}
			continue
		}
		values := make(map[string]string, len(aspects))
		scripted := f.Script[sym.DefinitionID]
		for _, aspect := range aspects {
			if v, ok := scripted[aspect]; ok {
				values[aspect] = v
			} else {
				values[aspect] = "auto"
			}
		}
		results[i] = Result{DefinitionID: sym.DefinitionID, Aspects: values}
	}
	return results, nil
}

// CallCount returns how many batches have been dispatched.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}
