package ai

import (
	"context"
)

// GenerateRequest is one model call. Terminal marks the call whose output
// becomes the visible answer; only terminal calls may stream.
type GenerateRequest struct {
	Messages []ChatMessage
	Terminal bool
}

// Generator is a language model bound to one credential.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, onToken func(string) error) (string, error)
}

// Embedder turns texts into vectors, positionally aligned with the input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Model binds the HTTP client to a chat configuration.
type Model struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewModel(client *OpenAICompatibleClient, cfg ChatConfig) *Model {
	return &Model{client: client, cfg: cfg}
}

func (m *Model) Generate(ctx context.Context, req GenerateRequest, onToken func(string) error) (string, error) {
	if req.Terminal && onToken != nil {
		return m.client.StreamComplete(ctx, m.cfg, req.Messages, onToken)
	}
	return m.client.Complete(ctx, m.cfg, req.Messages)
}

// EmbeddingModel batches requests to stay under provider input limits.
type EmbeddingModel struct {
	client    *OpenAICompatibleClient
	cfg       EmbeddingConfig
	batchSize int
}

func NewEmbeddingModel(client *OpenAICompatibleClient, cfg EmbeddingConfig, batchSize int) *EmbeddingModel {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &EmbeddingModel{client: client, cfg: cfg, batchSize: batchSize}
}

func (e *EmbeddingModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.client.EmbedBatch(ctx, e.cfg, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// Provider builds models bound to a per-organization API key. Endpoint, model
// names and temperature come from configuration.
type Provider struct {
	client    *OpenAICompatibleClient
	chat      ChatConfig
	summary   ChatConfig
	embedding EmbeddingConfig
}

func NewProvider(client *OpenAICompatibleClient, chat, summary ChatConfig, embedding EmbeddingConfig) *Provider {
	return &Provider{client: client, chat: chat, summary: summary, embedding: embedding}
}

// Chat returns the answering model.
func (p *Provider) Chat(apiKey string) Generator {
	cfg := p.chat
	cfg.APIKey = apiKey
	return NewModel(p.client, cfg)
}

// Summary returns the cheaper model used by summarization.
func (p *Provider) Summary(apiKey string) Generator {
	cfg := p.summary
	cfg.APIKey = apiKey
	return NewModel(p.client, cfg)
}

func (p *Provider) Embedder(apiKey string) Embedder {
	cfg := p.embedding
	cfg.APIKey = apiKey
	return NewEmbeddingModel(p.client, cfg, 0)
}
