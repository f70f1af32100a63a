// Package embedding 提供了调用文本向量化模型的客户端。
package embedding

import (
	"context"
	"fmt"

	"pdf-vectorize-go/internal/config"
)

// Client 把一批文本映射为等长向量，返回顺序与输入一致。
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// Model 返回写入 payload 的模型版本标识。
	Model() string
}

// NewClient 根据配置中的 provider 创建客户端，并包上熔断与限流。
func NewClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	var (
		inner Client
		err   error
	)
	switch cfg.Provider {
	case "", "openai":
		inner = newOpenAIClient(cfg)
	case "gemini":
		inner, err = newGeminiClient(ctx, cfg)
	case "hash":
		inner = NewHashClient(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewResilient(inner, cfg.RequestsPerSecond), nil
}

// checkShape 校验返回的向量数量与维度。
func checkShape(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("embedding provider returned empty vector at %d", i)
		}
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("embedding provider returned dimension %d, expected %d", len(v), dims)
		}
	}
	return nil
}
