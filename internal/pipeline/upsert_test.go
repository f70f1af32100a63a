package pipeline

import (
	"context"
	"errors"
	"testing"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/vectorstore"
)

func records(fp, gen string, ids ...string) []model.VectorRecord {
	out := make([]model.VectorRecord, len(ids))
	for i, id := range ids {
		out[i] = model.VectorRecord{ID: id, Vector: []float32{1, 0},
			Payload: model.Payload{ChunkID: id, Fingerprint: fp, Generation: gen, ChunkIndex: i}}
	}
	return out
}

func TestBuildRecords(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "c1", Text: "one", Page: 1, Section: "Body", ContentType: model.KindText, Index: 0},
		{ID: "c2", Text: "two", Page: 2, Section: "Results", ContentType: model.KindTable, Index: 1},
	}
	vectors := [][]float32{{1}, {2}}
	recs := BuildRecords(chunks, vectors, DocumentMeta{Fingerprint: "fp", FileKey: "k", Generation: "g", ModelVersion: "m"})
	for i, r := range recs {
		c := chunks[i]
		if r.ID != c.ID || r.Payload.ChunkID != c.ID || r.Vector[0] != vectors[i][0] {
			t.Fatalf("record %d = %+v", i, r)
		}
		if r.Payload.Page != c.Page || r.Payload.Section != c.Section || r.Payload.ContentType != string(c.ContentType) {
			t.Fatalf("record %d payload = %+v", i, r.Payload)
		}
		if r.Payload.Fingerprint != "fp" || r.Payload.Generation != "g" || r.Payload.ChunkIndex != c.Index {
			t.Fatalf("record %d meta = %+v", i, r.Payload)
		}
	}
}

// noReplaceStore 不实现 Replace，走“先删后写”路径。
type noReplaceStore struct {
	mem        *vectorstore.MemoryStore
	failUpsert bool
}

func (s *noReplaceStore) Upsert(ctx context.Context, recs []model.VectorRecord) error {
	if s.failUpsert {
		// 先写入一部分再报错，模拟部分写入
		_ = s.mem.Upsert(ctx, recs[:1])
		return errors.New("bulk rejected")
	}
	return s.mem.Upsert(ctx, recs)
}

func (s *noReplaceStore) Query(ctx context.Context, req vectorstore.QueryRequest) ([]model.ScoredRecord, error) {
	return s.mem.Query(ctx, req)
}

func (s *noReplaceStore) DeleteByFilter(ctx context.Context, filter model.Filter) (int, error) {
	return s.mem.DeleteByFilter(ctx, filter)
}

func (s *noReplaceStore) IDsByFilter(ctx context.Context, filter model.Filter) ([]string, error) {
	return s.mem.IDsByFilter(ctx, filter)
}

func TestUpsertCoordinator_DeleteThenWrite(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemoryStore()
	_ = mem.Upsert(ctx, records("fp", "old", "o1", "o2"))
	_ = mem.Upsert(ctx, records("other", "x", "z1"))
	store := &noReplaceStore{mem: mem}

	ids, deleted, err := NewUpsertCoordinator(store).Write(ctx, "fp", records("fp", "new", "n1", "n2", "n3"), true)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if deleted != 2 || len(ids) != 3 {
		t.Fatalf("deleted=%d ids=%v", deleted, ids)
	}
	if _, ok := mem.Get("o1"); ok {
		t.Fatal("old record still present")
	}
	if _, ok := mem.Get("z1"); !ok {
		t.Fatal("record of another document was removed")
	}
}

func TestUpsertCoordinator_AtomicReplace(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemoryStore()
	_ = mem.Upsert(ctx, records("fp", "old", "o1"))

	ids, deleted, err := NewUpsertCoordinator(mem).Write(ctx, "fp", records("fp", "new", "n1"), true)
	if err != nil || deleted != 1 || len(ids) != 1 || ids[0] != "n1" {
		t.Fatalf("ids=%v deleted=%d err=%v", ids, deleted, err)
	}
	if mem.Len() != 1 {
		t.Fatalf("store has %d records", mem.Len())
	}
}

func TestUpsertCoordinator_FailureLeavesNoPartialGeneration(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemoryStore()
	store := &noReplaceStore{mem: mem, failUpsert: true}

	_, _, err := NewUpsertCoordinator(store).Write(ctx, "fp", records("fp", "g1", "n1", "n2"), false)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "upsert" {
		t.Fatalf("expected upsert StoreError, got %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("partial generation left behind: %d records", mem.Len())
	}
}
