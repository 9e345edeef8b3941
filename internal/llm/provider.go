package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface core logic needs to call a chat model. It
// mirrors the CreateChatCompletion method so any OpenAI-compatible backend
// (OpenRouter included) can be adapted, and fakes slot in for tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Embedder is the counterpart capability used by the offline indexer.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider adapts *openai.Client to the Client and Embedder interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return p.Inner.CreateEmbeddings(ctx, request)
}

// NewOpenAIProvider builds a provider against an OpenAI-compatible endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}
