package interactions

// Reason codes for gate rejections.
type Reason string

const (
	ReasonSelfLoop          Reason = "self-loop"
	ReasonDuplicate         Reason = "duplicate"
	ReasonReverseOfAST      Reason = "reverse-of-ast"
	ReasonTypeOnlyInitiator Reason = "type-only-initiator"
)

// GateResult is the outcome of one admission check. A rejection is a
// normal control-flow outcome, not an error.
type GateResult struct {
	Pass   bool   `json:"pass"`
	Reason Reason `json:"reason,omitempty"`
}

// Gate decides whether a candidate module pair may be recorded as an
// interaction. It is a pure decision function over a snapshot of the
// existing pairs and the type-only module set; callers record the
// result themselves.
type Gate struct {
	pairs    PairSet
	typeOnly map[int64]bool
}

// NewGate builds a gate from the existing pair set and the set of
// modules known to contain only type-level definitions.
func NewGate(pairs PairSet, typeOnly map[int64]bool) *Gate {
	if pairs == nil {
		pairs = make(PairSet)
	}
	if typeOnly == nil {
		typeOnly = make(map[int64]bool)
	}
	return &Gate{pairs: pairs, typeOnly: typeOnly}
}

// Check evaluates the rejection rules in order; the first match wins.
//
//  1. self-loop: a module cannot interact with itself.
//  2. duplicate: the ordered pair is already recorded.
//  3. reverse-of-ast: syntactic evidence exists for the opposite
//     direction. Inferred reverse edges do not block; only ast and
//     ast-import sources are authoritative.
//  4. type-only-initiator: the from module holds nothing but
//     type-level definitions, so it has no behavior to initiate with.
func (g *Gate) Check(from, to int64) GateResult {
	if from == to {
		return GateResult{Pass: false, Reason: ReasonSelfLoop}
	}

	p := Pair{From: from, To: to}
	if g.pairs.Has(p) {
		return GateResult{Pass: false, Reason: ReasonDuplicate}
	}

	if src, ok := g.pairs[p.Reverse()]; ok && src.IsSyntactic() {
		return GateResult{Pass: false, Reason: ReasonReverseOfAST}
	}

	if g.typeOnly[from] {
		return GateResult{Pass: false, Reason: ReasonTypeOnlyInitiator}
	}

	return GateResult{Pass: true}
}

// Admit runs Check and, on pass, adds the pair to the gate's own set
// so later candidates in the same batch see it as a duplicate.
func (g *Gate) Admit(from, to int64, src Source) GateResult {
	res := g.Check(from, to)
	if res.Pass {
		g.pairs.Add(Pair{From: from, To: to}, src)
	}
	return res
}
