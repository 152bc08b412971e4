package classify

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `You are a code analyst. You receive a JSON array of source symbols with their call dependencies and return structured annotations. Respond with JSON only, no prose.`

// buildPrompt renders the full request text: instructions describing
// the requested aspects, the response schema, and the batch as JSON.
func buildPrompt(reg *Registry, batch []SymbolContext, aspects []string) (string, error) {
	input, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	prompt := "Annotate every symbol below with the following aspects:\n" +
		reg.Instructions(aspects) +
		"\nRespond with a JSON object of the shape\n" +
		`{"results": [{"id": <symbol id>, "aspects": {"<aspect>": "<value>", ...}}, ...]}` + "\n" +
		"with exactly one entry per input symbol. If a symbol cannot be " +
		"classified, return it with an \"error\" string instead of \"aspects\".\n" +
		"\n[SYMBOLS]\n" + string(input)
	return prompt, nil
}

// responseDoc is the expected model response shape.
type responseDoc struct {
	Results []Result `json:"results"`
}

// parseResults decodes a model response and aligns it with the batch:
// one Result per input symbol in input order. Symbols the model did
// not answer for come back with Err set. Accepts either the documented
// object shape or a bare array.
func parseResults(raw []byte, batch []SymbolContext) ([]Result, error) {
	var doc responseDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		var arr []Result
		if err2 := json.Unmarshal(raw, &arr); err2 != nil {
			return nil, fmt.Errorf("invalid JSON from model: %w", err)
		}
		doc.Results = arr
	}

	byID := make(map[int64]Result, len(doc.Results))
	for _, r := range doc.Results {
		byID[r.DefinitionID] = r
	}

	out := make([]Result, len(batch))
	for i, sym := range batch {
		r, ok := byID[sym.DefinitionID]
		if !ok {
			out[i] = Result{
				DefinitionID: sym.DefinitionID,
				Err:          "model returned no result for symbol",
			}
			continue
		}
		if r.Err == "" && len(r.Aspects) == 0 {
			r.Err = "model returned no aspects for symbol"
		}
		r.DefinitionID = sym.DefinitionID
		out[i] = r
	}
	return out, nil
}
