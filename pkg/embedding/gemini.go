package embedding

import (
	"context"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/log"
)

// geminiClient 使用 Gemini 的 BatchEmbedContents 接口。
type geminiClient struct {
	client *genai.Client
	model  string
	dims   int
}

func newGeminiClient(ctx context.Context, cfg config.EmbeddingConfig) (*geminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	return &geminiClient{client: client, model: model, dims: cfg.Dimensions}, nil
}

func (c *geminiClient) Model() string { return c.model }

func (c *geminiClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	log.Infof("[EmbeddingClient] 调用 Gemini Embedding, model: %s, batch: %d", c.model, len(texts))
	em := c.client.EmbeddingModel(c.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed failed: %w", err)
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, e.Values)
	}
	if err := checkShape(vectors, len(texts), c.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}
