package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/log"
)

// openAIClient 调用 OpenAI 兼容的 /embeddings 接口。
type openAIClient struct {
	client *openai.Client
	model  string
	dims   int
}

func newOpenAIClient(cfg config.EmbeddingConfig) *openAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}
}

func (c *openAIClient) Model() string { return c.model }

func (c *openAIClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	log.Infof("[EmbeddingClient] 调用 Embedding API, model: %s, batch: %d", c.model, len(texts))
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}

	// 按 Index 放回原位，不依赖返回顺序
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding api returned out of range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	if err := checkShape(vectors, len(texts), c.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}
