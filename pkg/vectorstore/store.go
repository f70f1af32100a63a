// Package vectorstore 定义了向量库的抽象以及内存实现。
package vectorstore

import (
	"context"
	"strconv"

	"pdf-vectorize-go/internal/model"
)

// QueryRequest 描述一次向量检索。Text 非空时，支持混合检索的后端会附加关键词匹配。
type QueryRequest struct {
	Vector []float32
	Limit  int
	Filter model.Filter
	Text   string
}

// Store 是向量库需要提供的能力。
type Store interface {
	// Upsert 按记录 ID 插入或覆盖。
	Upsert(ctx context.Context, records []model.VectorRecord) error
	// Query 返回按相似度降序排列的命中结果。
	Query(ctx context.Context, req QueryRequest) ([]model.ScoredRecord, error)
	// DeleteByFilter 删除满足过滤条件的记录并返回删除数量。
	DeleteByFilter(ctx context.Context, filter model.Filter) (int, error)
	// IDsByFilter 返回满足过滤条件的记录 ID，按 chunk_index 升序。
	IDsByFilter(ctx context.Context, filter model.Filter) ([]string, error)
}

// Replacer 由能在一个事务内完成“删旧写新”的后端实现。
type Replacer interface {
	Replace(ctx context.Context, filter model.Filter, records []model.VectorRecord) (int, error)
}

// PayloadField 取出 payload 中可用于过滤的字段值。
func PayloadField(p model.Payload, field string) (string, bool) {
	switch field {
	case model.FieldFingerprint:
		return p.Fingerprint, true
	case "file_key":
		return p.FileKey, true
	case "generation":
		return p.Generation, true
	case "content_type":
		return p.ContentType, true
	case "section":
		return p.Section, true
	case "page":
		return strconv.Itoa(p.Page), true
	case "chunk_id":
		return p.ChunkID, true
	}
	return "", false
}

// Matches 判断 payload 是否满足全部过滤条件，未知字段视为不匹配。
func Matches(p model.Payload, filter model.Filter) bool {
	for field, want := range filter {
		got, ok := PayloadField(p, field)
		if !ok || got != want {
			return false
		}
	}
	return true
}
