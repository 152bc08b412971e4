// Package classify sends batches of symbol contexts to an external
// model and returns aspect annotations. Backends exist for Gemini and
// OpenAI; a scripted fake serves tests and offline runs. Batch-level
// errors mean transport failure; per-symbol failures ride in
// Result.Err so one bad symbol never aborts a batch.
package classify

import (
	"context"
	"errors"
)

// SymbolContext is the view of one definition handed to the model.
type SymbolContext struct {
	DefinitionID int64  `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Signature    string `json:"signature,omitempty"`
	ModulePath   string `json:"module,omitempty"`
	// Dependencies carries the already-annotated aspects of the symbols
	// this one calls, so classification can build on what is known
	// about the callees.
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Dependency is one annotated callee of a symbol under classification.
type Dependency struct {
	Name    string            `json:"name"`
	Aspects map[string]string `json:"aspects,omitempty"`
}

// Result is the per-symbol outcome of one batch.
type Result struct {
	DefinitionID int64             `json:"id"`
	Aspects      map[string]string `json:"aspects,omitempty"`
	// Err carries a per-symbol failure; empty means success.
	Err string `json:"error,omitempty"`
}

// Classifier annotates a batch of symbols with the requested aspects.
// The returned slice has one Result per input symbol in input order.
// An error return means the whole batch failed (transport, auth);
// per-symbol problems are reported through Result.Err instead.
type Classifier interface {
	Classify(ctx context.Context, batch []SymbolContext, aspects []string) ([]Result, error)
}

// PermanentError wraps a failure that retrying cannot fix, such as a
// rejected API key or a malformed request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
