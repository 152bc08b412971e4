package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClassifier classifies symbol batches through the OpenAI chat
// API in JSON mode.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
	reg    *Registry
	logger *slog.Logger
}

// NewOpenAIClassifier builds an OpenAI-backed classifier.
func NewOpenAIClassifier(apiKey, model string, reg *Registry, logger *slog.Logger) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
		reg:    reg,
		logger: logger,
	}, nil
}

func (o *OpenAIClassifier) Classify(ctx context.Context, batch []SymbolContext, aspects []string) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	prompt, err := buildPrompt(o.reg, batch, aspects)
	if err != nil {
		return nil, Permanent(err)
	}
	if o.logger != nil {
		o.logger.Debug("openai request", "model", o.model, "symbols", len(batch))
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.HTTPStatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil, Permanent(fmt.Errorf("openai request rejected: %w", err))
			}
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	results, err := parseResults([]byte(resp.Choices[0].Message.Content), batch)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return results, nil
}
