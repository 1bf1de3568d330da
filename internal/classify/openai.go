package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig targets an OpenAI-compatible chat-completions endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openAICompleter struct {
	client chatClient
	model  string
}

// NewOpenAI creates an OpenAI-compatible backend for all three collaborators.
func NewOpenAI(cfg OpenAIConfig, taxonomy *Taxonomy) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return newOpenAIClassifier(openai.NewClientWithConfig(clientCfg), cfg.Model, taxonomy), nil
}

func newOpenAIClassifier(client chatClient, model string, taxonomy *Taxonomy) *LLM {
	if model == "" {
		model = defaultOpenAIModel
	}
	return newLLMClassifier(BackendOpenAI, &openAICompleter{client: client, model: model}, taxonomy)
}

func (c *openAICompleter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResult)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
