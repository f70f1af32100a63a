package main

import (
	"bytes"
	"strings"
	"testing"

	"pdf-vectorize-go/pkg/token"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("VECTORIZER_JWT_SECRET", "s3cret")

	out, err := run(t, "token", "indexer", "--scopes", "search", "--ttl", "0")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := token.NewJWTManager("s3cret", "pdf-vectorize-go").VerifyToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify: %v (output %q)", err, out)
	}
	if claims.Subject != "indexer" || !claims.HasScope("search") || claims.HasScope("files") {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestSearchCommand_MemoryBackends(t *testing.T) {
	t.Setenv("VECTORIZER_STORAGE_BACKEND", "memory")
	t.Setenv("VECTORIZER_VECTORSTORE_BACKEND", "memory")
	t.Setenv("VECTORIZER_EMBEDDING_PROVIDER", "hash")
	t.Setenv("VECTORIZER_EMBEDDING_DIMENSIONS", "64")

	if _, err := run(t, "search", "annual", "revenue", "--limit", "3"); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestVectorizeCommand_RequiresInput(t *testing.T) {
	t.Setenv("VECTORIZER_STORAGE_BACKEND", "memory")
	t.Setenv("VECTORIZER_VECTORSTORE_BACKEND", "memory")
	t.Setenv("VECTORIZER_EMBEDDING_PROVIDER", "hash")

	if _, err := run(t, "vectorize"); err == nil {
		t.Fatal("expected error without file or --key")
	}
}
