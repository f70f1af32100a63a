package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"pdf-vectorize-go/pkg/embedding"
	"pdf-vectorize-go/pkg/log"
)

// EmbeddingCoordinator 分批调用 embedding 服务。批次可以并发执行，
// 但结果按原始下标写回，输出与输入一一对应。
type EmbeddingCoordinator struct {
	client      embedding.Client
	batchSize   int
	concurrency int
	maxAttempts uint
	initial     time.Duration
}

func NewEmbeddingCoordinator(client embedding.Client, batchSize, concurrency int, maxAttempts uint, initial time.Duration) *EmbeddingCoordinator {
	if batchSize <= 0 {
		batchSize = 64
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	return &EmbeddingCoordinator{
		client:      client,
		batchSize:   batchSize,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		initial:     initial,
	}
}

// Model 返回底层模型标识。
func (c *EmbeddingCoordinator) Model() string { return c.client.Model() }

// Embed 返回与 texts 顺序一致的向量。任一批次在重试耗尽后失败，整体返回 EmbeddingError。
func (c *EmbeddingCoordinator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := start / c.batchSize
		g.Go(func() error {
			out, err := c.embedBatch(gctx, batch, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// 调用方取消或超时时返回上下文错误本身
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return nil, &EmbeddingError{Batch: i / c.batchSize, Attempts: 1,
				Err: fmt.Errorf("inconsistent dimension %d at %d, expected %d", len(v), i, dims)}
		}
	}
	return vectors, nil
}

func (c *EmbeddingCoordinator) embedBatch(ctx context.Context, batch int, texts []string) ([][]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = 20 * c.initial

	attempts := 0
	out, err := backoff.Retry(ctx, func() ([][]float32, error) {
		attempts++
		vs, err := c.client.CreateEmbeddings(ctx, texts)
		if err == nil && len(vs) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vs), len(texts))
		}
		if err != nil {
			if ctx.Err() != nil || embedding.IsPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return vs, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("[EmbeddingCoordinator] 批次 %d 第 %d 次调用失败, %s 后重试: %v", batch, attempts, next, err)
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Errorf("[EmbeddingCoordinator] 批次 %d 在 %d 次尝试后失败: %v", batch, attempts, err)
		return nil, &EmbeddingError{Batch: batch, Attempts: attempts, Err: err}
	}
	return out, nil
}
