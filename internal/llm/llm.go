package llm

import (
	"context"

	"github.com/reviewagent/reviewagent/internal/config"
	"github.com/sashabaranov/go-openai"
)

type client struct {
	api *openai.Client
}

// NewClient creates a Client backed by an OpenAI-compatible gateway.
func NewClient(cfg config.LLMConfig) Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	return &client{api: openai.NewClientWithConfig(apiConfig)}
}

func (c *client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return c.api.CreateChatCompletion(ctx, req)
}

func (c *client) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error) {
	return c.api.CreateChatCompletionStream(ctx, req)
}
