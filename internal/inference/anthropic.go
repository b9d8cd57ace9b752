package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicEngine calls the Anthropic Messages API. The system prompt is
// marked cacheable since classification reuses the same instructions across
// thousands of records.
type AnthropicEngine struct {
	client anthropic.Client
	model  string
}

func NewAnthropicEngine(apiKey, model string) *AnthropicEngine {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicEngine{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (e *AnthropicEngine) Name() string { return "anthropic" }

func (e *AnthropicEngine) Complete(ctx context.Context, p Prompt) (string, Usage, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	message, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: p.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, classifyAnthropicErr(err)
	}

	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

func classifyAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests,
			apierr.StatusCode >= http.StatusInternalServerError:
			return Transient(fmt.Errorf("anthropic API error: %w", err))
		default:
			return fmt.Errorf("anthropic API error: %w", err)
		}
	}
	if IsTransient(err) {
		return Transient(fmt.Errorf("anthropic API error: %w", err))
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
