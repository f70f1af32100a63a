package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"pdf-vectorize-go/internal/model"
)

// MemoryStore 是进程内的向量库实现，用于测试和单机调试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.VectorRecord
}

// NewMemoryStore 创建一个空的内存向量库。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.VectorRecord)}
}

func (s *MemoryStore) Upsert(_ context.Context, records []model.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, req QueryRequest) ([]model.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.ScoredRecord, 0, len(s.records))
	for _, r := range s.records {
		if !Matches(r.Payload, req.Filter) {
			continue
		}
		results = append(results, model.ScoredRecord{
			ID:      r.ID,
			Score:   cosine(req.Vector, r.Vector),
			Payload: r.Payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if req.Limit > 0 && req.Limit < len(results) {
		results = results[:req.Limit]
	}
	return results, nil
}

func (s *MemoryStore) DeleteByFilter(_ context.Context, filter model.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, r := range s.records {
		if Matches(r.Payload, filter) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) IDsByFilter(_ context.Context, filter model.Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]model.VectorRecord, 0)
	for _, r := range s.records {
		if Matches(r.Payload, filter) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Payload.ChunkIndex < matched[j].Payload.ChunkIndex
	})
	ids := make([]string, 0, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Replace 在同一把锁内删除旧记录并写入新记录，外部观察不到中间状态。
func (s *MemoryStore) Replace(_ context.Context, filter model.Filter, records []model.VectorRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, r := range s.records {
		if Matches(r.Payload, filter) {
			delete(s.records, id)
			deleted++
		}
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.ID] = r
	}
	return deleted, nil
}

// Len 返回当前记录总数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get 按 ID 读取一条记录。
func (s *MemoryStore) Get(id string) (model.VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// cosine 计算余弦相似度，维度不一致时返回 0。
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
