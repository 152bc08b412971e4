package classify

import (
	"context"
	"fmt"
	"log/slog"

	genai "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClassifier classifies symbol batches through the Gemini API,
// requesting application/json responses.
type GeminiClassifier struct {
	client *genai.Client
	model  string
	reg    *Registry
	logger *slog.Logger
}

// NewGeminiClassifier builds a Gemini-backed classifier. An empty
// apiKey defers to the GEMINI_API_KEY environment variable; an empty
// model selects DefaultGeminiModel.
func NewGeminiClassifier(ctx context.Context, apiKey, model string, reg *Registry, logger *slog.Logger) (*GeminiClassifier, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &GeminiClassifier{client: client, model: model, reg: reg, logger: logger}, nil
}

func (g *GeminiClassifier) Classify(ctx context.Context, batch []SymbolContext, aspects []string) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	prompt, err := buildPrompt(g.reg, batch, aspects)
	if err != nil {
		return nil, Permanent(err)
	}
	if g.logger != nil {
		g.logger.Debug("gemini request", "model", g.model, "symbols", len(batch), "bytes", len(prompt))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	results, err := parseResults([]byte(text), batch)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return results, nil
}
