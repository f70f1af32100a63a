package pgvector

import (
	"context"
	"os"
	"testing"
	"time"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/vectorstore"
)

func TestWhereClause_SortedAndNumbered(t *testing.T) {
	where, args, err := whereClause(model.Filter{"page": "2", model.FieldFingerprint: "fp"}, 3)
	if err != nil {
		t.Fatalf("whereClause: %v", err)
	}
	if where != "fingerprint = $3 AND page::text = $4" {
		t.Fatalf("where = %q", where)
	}
	if len(args) != 2 || args[0] != "fp" || args[1] != "2" {
		t.Fatalf("args = %v", args)
	}

	if _, _, err := whereClause(model.Filter{"user_id; DROP": "x"}, 1); err == nil {
		t.Fatal("unknown field must be rejected")
	}
	if where, _, _ := whereClause(nil, 1); where != "TRUE" {
		t.Fatalf("empty filter = %q", where)
	}
}

// TestStore_Replace 需要一个装有 pgvector 扩展的 Postgres，通过 PGVECTOR_TEST_DSN 提供。
func TestStore_Replace(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}
	ctx := context.Background()
	table := "test_chunks_" + time.Now().Format("150405")
	s, err := NewStore(ctx, config.PGVectorConfig{DSN: dsn, Table: table}, 3)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() {
		_, _ = s.db.ExecContext(ctx, "DROP TABLE "+table)
		_ = s.Close()
	}()

	rec := func(id string, idx int) model.VectorRecord {
		return model.VectorRecord{ID: id, Vector: []float32{1, 0, 0}, Payload: model.Payload{
			ChunkID: id, Fingerprint: "fp", ChunkIndex: idx, Text: id, Page: 1, Section: "Body", ContentType: "text",
			CreatedAt: time.Now(),
		}}
	}
	if err := s.Upsert(ctx, []model.VectorRecord{rec("a", 0), rec("b", 1)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	n, err := s.Replace(ctx, model.Filter{model.FieldFingerprint: "fp"}, []model.VectorRecord{rec("c", 0)})
	if err != nil || n != 2 {
		t.Fatalf("replace = %d, %v", n, err)
	}
	ids, _ := s.IDsByFilter(ctx, model.Filter{model.FieldFingerprint: "fp"})
	if len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("ids after replace = %v", ids)
	}
	hits, err := s.Query(ctx, vectorstore.QueryRequest{Vector: []float32{1, 0, 0}, Limit: 5})
	if err != nil || len(hits) != 1 || hits[0].Payload.Text != "c" {
		t.Fatalf("query = %+v, %v", hits, err)
	}
}
