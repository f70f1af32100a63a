package pipeline

import (
	"context"
	"errors"
	"testing"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/vectorstore"
)

func TestFingerprint(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Fingerprint([]byte("abc")); got != want {
		t.Fatalf("Fingerprint = %s", got)
	}
}

func TestHashGate_DecisionTable(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	gate := NewHashGate(store)
	ctx := context.Background()

	for _, force := range []bool{false, true} {
		res, err := gate.Check(ctx, "fp", force)
		if err != nil || res.Decision != DecisionProceed {
			t.Fatalf("empty store force=%t: %v %v", force, res.Decision, err)
		}
	}

	_ = store.Upsert(ctx, []model.VectorRecord{
		{ID: "b", Vector: []float32{1}, Payload: model.Payload{Fingerprint: "fp", ChunkIndex: 1}},
		{ID: "a", Vector: []float32{1}, Payload: model.Payload{Fingerprint: "fp", ChunkIndex: 0}},
	})

	res, err := gate.Check(ctx, "fp", false)
	if err != nil || res.Decision != DecisionSkip {
		t.Fatalf("existing no force: %v %v", res.Decision, err)
	}
	if len(res.ExistingIDs) != 2 || res.ExistingIDs[0] != "a" {
		t.Fatalf("existing ids = %v", res.ExistingIDs)
	}

	res, err = gate.Check(ctx, "fp", true)
	if err != nil || res.Decision != DecisionReplace {
		t.Fatalf("existing force: %v %v", res.Decision, err)
	}
}

type brokenStore struct{ vectorstore.Store }

func (brokenStore) IDsByFilter(context.Context, model.Filter) ([]string, error) {
	return nil, vectorstore.Transient(errors.New("connection refused"))
}

func TestHashGate_StoreError(t *testing.T) {
	_, err := NewHashGate(brokenStore{}).Check(context.Background(), "fp", false)
	var se *StoreError
	if !errors.As(err, &se) || !se.Transient || se.Op != "lookup" {
		t.Fatalf("expected transient StoreError, got %v", err)
	}
}
