package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"pdf-vectorize-go/pkg/embedding"
)

// indexClient 把 "text-N" 映射为 [N]，便于检查对齐。
type indexClient struct {
	mu    sync.Mutex
	calls int
}

func (c *indexClient) Model() string { return "index" }

func (c *indexClient) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		n, err := strconv.Atoi(t[len("text-"):])
		if err != nil {
			return nil, err
		}
		out[i] = []float32{float32(n)}
	}
	return out, nil
}

func TestEmbeddingCoordinator_AlignmentAcrossBatches(t *testing.T) {
	texts := make([]string, 23)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	client := &indexClient{}
	vectors, err := NewEmbeddingCoordinator(client, 4, 3, 1, time.Millisecond).Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors", len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != i {
			t.Fatalf("vector %d belongs to text %v", i, v[0])
		}
	}
	if client.calls != 6 {
		t.Fatalf("expected 6 batches, got %d", client.calls)
	}
}

func TestEmbeddingCoordinator_HashStubAlignment(t *testing.T) {
	hash := embedding.NewHashClient(64)
	texts := []string{"alpha", "beta gamma", "delta", "epsilon zeta eta", "theta"}
	vectors, err := NewEmbeddingCoordinator(hash, 2, 2, 1, time.Millisecond).Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, text := range texts {
		want := hash.Vector(text)
		for j := range want {
			if vectors[i][j] != want[j] {
				t.Fatalf("vector %d does not match text %q", i, text)
			}
		}
	}
}

type flakyEmbedder struct {
	failures int32
	err      error
	calls    int32
}

func (f *flakyEmbedder) Model() string { return "flaky" }

func (f *flakyEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestEmbeddingCoordinator_RetriesThenSucceeds(t *testing.T) {
	client := &flakyEmbedder{failures: 2, err: errors.New("503 service unavailable")}
	vectors, err := NewEmbeddingCoordinator(client, 8, 1, 3, time.Millisecond).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 || client.calls != 3 {
		t.Fatalf("vectors=%d calls=%d", len(vectors), client.calls)
	}
}

func TestEmbeddingCoordinator_ExhaustedRetries(t *testing.T) {
	client := &flakyEmbedder{failures: 100, err: errors.New("rate limited")}
	_, err := NewEmbeddingCoordinator(client, 8, 1, 3, time.Millisecond).Embed(context.Background(), []string{"a"})
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if ee.Attempts != 3 || ee.Batch != 0 {
		t.Fatalf("error = %+v", ee)
	}
}

func TestEmbeddingCoordinator_PermanentErrorNotRetried(t *testing.T) {
	client := &flakyEmbedder{failures: 100, err: gobreaker.ErrOpenState}
	_, err := NewEmbeddingCoordinator(client, 8, 1, 5, time.Millisecond).Embed(context.Background(), []string{"a"})
	var ee *EmbeddingError
	if !errors.As(err, &ee) || ee.Attempts != 1 || client.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, client.calls)
	}
}

func TestEmbeddingCoordinator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbeddingCoordinator(embedding.NewHashClient(8), 1, 1, 3, time.Millisecond).Embed(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
