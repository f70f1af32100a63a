package service

import (
	"context"
	"errors"
	"strings"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/vectorstore"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// ErrEmptyQuery 表示查询文本为空。
var ErrEmptyQuery = errors.New("query must not be empty")

// QueryEmbedder 把查询文本转换为向量。
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchService 接口定义了检索操作。
type SearchService interface {
	Search(ctx context.Context, req model.SearchRequest) ([]model.SearchResponseDTO, error)
}

type searchService struct {
	embedder QueryEmbedder
	store    vectorstore.Store
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embedder QueryEmbedder, store vectorstore.Store) SearchService {
	return &searchService{embedder: embedder, store: store}
}

// Search 向量化查询文本并检索分块；FileHash 非空时只返回该文档的分块。
func (s *searchService) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchResponseDTO, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	qr := vectorstore.QueryRequest{Vector: vectors[0], Limit: limit, Text: query}
	if req.FileHash != "" {
		qr.Filter = model.Filter{model.FieldFingerprint: req.FileHash}
	}
	hits, err := s.store.Query(ctx, qr)
	if err != nil {
		return nil, &pipeline.StoreError{Op: "query", Transient: vectorstore.IsTransient(err), Err: err}
	}
	log.Infof("[SearchService] 检索完成, query: '%s', file_hash: '%s', 命中 %d 条", query, req.FileHash, len(hits))

	results := make([]model.SearchResponseDTO, len(hits))
	for i, h := range hits {
		related := h.Payload.RelatedImageIDs
		if related == nil {
			related = []string{}
		}
		results[i] = model.SearchResponseDTO{
			ID:              h.ID,
			Score:           h.Score,
			Text:            h.Payload.Text,
			Page:            h.Payload.Page,
			Section:         h.Payload.Section,
			ContentType:     h.Payload.ContentType,
			FileHash:        h.Payload.Fingerprint,
			FileKey:         h.Payload.FileKey,
			RelatedImageIDs: related,
		}
	}
	return results, nil
}
