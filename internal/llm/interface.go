package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the minimal subset of openai.Client used by the reasoning loop;
// it is easy to mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error)
}

// Stream is one in-flight streaming completion. Recv returns io.EOF once the
// stream is exhausted.
type Stream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}
