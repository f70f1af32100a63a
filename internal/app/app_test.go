package app

import (
	"context"
	"testing"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/vectorstore"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.VectorStore.Backend = "memory"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 64
	cfg.Tika.ServerURL = ""
	return cfg
}

func TestNew_MemoryBackends(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.Processor == nil || a.Repo == nil || a.Redis != nil {
		t.Fatalf("app = %+v", a)
	}
	if _, ok := vectorstore.AsReplacer(a.Store); !ok {
		t.Fatal("memory store should support atomic replace through the retry wrapper")
	}
	if a.Embedder.Model() != "feature-hash" {
		t.Fatalf("model = %s", a.Embedder.Model())
	}
}

func TestNew_UnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "ftp"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}

	cfg = memoryConfig()
	cfg.VectorStore.Backend = "faiss"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown vector store backend")
	}
}
