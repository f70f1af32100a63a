package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/vectorstore"
)

// maxIDs 是 IDsByFilter 单次返回的上限，对应 index.max_result_window 的默认值。
const maxIDs = 10000

// Store 使用 dense_vector 字段做 kNN 检索，其余 payload 字段作为可过滤的 keyword。
type Store struct {
	client *elasticsearch.Client
	index  string
}

// NewStore 创建客户端并确保索引存在。
func NewStore(ctx context.Context, cfg config.ElasticsearchConfig, dims int) (*Store, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}
	if err := createIndexIfNotExists(ctx, client, cfg.IndexName, dims); err != nil {
		return nil, vectorstore.Transient(err)
	}
	return &Store{client: client, index: cfg.IndexName}, nil
}

// esDocument 是写入索引的文档结构。
type esDocument struct {
	model.Payload
	Vector []float32 `json:"vector"`
}

func (s *Store) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	body, err := bulkBody(s.index, records)
	if err != nil {
		return err
	}

	req := esapi.BulkRequest{
		Body:    bytes.NewReader(body),
		Refresh: "wait_for",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return vectorstore.Transient(err)
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return err
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, r := range item {
				if r.Status >= 300 {
					log.Errorf("[ES] bulk 写入失败, status: %d, reason: %s", r.Status, r.Error.Reason)
					err := fmt.Errorf("bulk item failed with status %d: %s", r.Status, r.Error.Reason)
					if r.Status >= 500 || r.Status == http.StatusTooManyRequests {
						return vectorstore.Transient(err)
					}
					return err
				}
			}
		}
	}
	return nil
}

// bulkBody 把记录编码为 NDJSON 格式的 bulk 请求体。
func bulkBody(index string, records []model.VectorRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": index, "_id": r.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		if err := enc.Encode(esDocument{Payload: r.Payload, Vector: r.Vector}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func termFilters(filter model.Filter) []map[string]interface{} {
	terms := make([]map[string]interface{}, 0, len(filter))
	for field, value := range filter {
		terms = append(terms, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}
	return terms
}

// searchBody 构建 kNN 检索请求；给出查询文本时追加 BM25 match 做混合召回。
func searchBody(req vectorstore.QueryRequest) map[string]interface{} {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	candidates := limit * 10
	if candidates < 100 {
		candidates = 100
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   req.Vector,
		"k":              limit,
		"num_candidates": candidates,
	}
	terms := termFilters(req.Filter)
	if len(terms) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"filter": terms},
		}
	}

	body := map[string]interface{}{
		"size":    limit,
		"knn":     knn,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
	if req.Text != "" {
		boolQuery := map[string]interface{}{
			"should": []map[string]interface{}{
				{"match": map[string]interface{}{"text": req.Text}},
			},
			"minimum_should_match": 1,
		}
		if len(terms) > 0 {
			boolQuery["filter"] = terms
		}
		body["query"] = map[string]interface{}{"bool": boolQuery}
	}
	return body
}

func (s *Store) Query(ctx context.Context, req vectorstore.QueryRequest) ([]model.ScoredRecord, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(searchBody(req)); err != nil {
		return nil, fmt.Errorf("序列化 Elasticsearch 查询失败: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, vectorstore.Transient(err)
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return nil, err
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string        `json:"_id"`
				Score  float64       `json:"_score"`
				Source model.Payload `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析 Elasticsearch 响应失败: %w", err)
	}

	out := make([]model.ScoredRecord, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		out = append(out, model.ScoredRecord{ID: hit.ID, Score: hit.Score, Payload: hit.Source})
	}
	return out, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter model.Filter) (int, error) {
	var buf bytes.Buffer
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": termFilters(filter)},
		},
	}
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return 0, err
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{s.index},
		Body:      &buf,
		Refresh:   &refresh,
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, vectorstore.Transient(err)
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return 0, err
	}

	var parsed struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("解析 delete_by_query 响应失败: %w", err)
	}
	log.Infof("[ES] delete_by_query 删除 %d 条记录, filter: %v", parsed.Deleted, filter)
	return parsed.Deleted, nil
}

func (s *Store) IDsByFilter(ctx context.Context, filter model.Filter) ([]string, error) {
	var buf bytes.Buffer
	query := map[string]interface{}{
		"size":    maxIDs,
		"_source": false,
		"sort":    []map[string]interface{}{{"chunk_index": "asc"}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": termFilters(filter)},
		},
	}
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, vectorstore.Transient(err)
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析 Elasticsearch 响应失败: %w", err)
	}
	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// checkResponse 把 ES 的错误响应转换为 error；5xx 与 429 视为瞬时错误。
func checkResponse(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	err := fmt.Errorf("elasticsearch returned %s: %s", strconv.Itoa(res.StatusCode), string(body))
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return vectorstore.Transient(err)
	}
	return err
}
