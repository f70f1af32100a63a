package storage

import (
	"context"
	"sync"
)

// MemoryStore 是进程内的 BlobStore，供测试和命令行工具使用。
type MemoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{prefix: prefix, objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, fileName, _ string) (string, error) {
	key := NewKey(m.prefix, fileName)
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}
