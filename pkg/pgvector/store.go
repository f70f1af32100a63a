// Package pgvector 提供了基于 Postgres + pgvector 扩展的向量库实现。
// 与 Elasticsearch 不同，它能在一个事务内完成同一指纹的删旧写新。
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	pgv "github.com/pgvector/pgvector-go"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/vectorstore"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// filterColumns 是允许出现在过滤条件里的 payload 字段到列名的映射。
var filterColumns = map[string]string{
	model.FieldFingerprint: "fingerprint",
	"file_key":             "file_key",
	"generation":           "generation",
	"content_type":         "content_type",
	"section":              "section",
	"page":                 "page::text",
	"chunk_id":             "id",
}

type Store struct {
	db    *sql.DB
	table string
}

// NewStore 打开连接池并创建扩展与表。
func NewStore(ctx context.Context, cfg config.PGVectorConfig, dims int) (*Store, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", cfg.Table)
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, vectorstore.Transient(fmt.Errorf("ping db: %w", err))
	}

	s := &Store{db: db, table: cfg.Table}
	if err := s.migrate(ctx, dims); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Infof("[PGVector] 表 '%s' 就绪, 向量维度: %d", cfg.Table, dims)
	return s, nil
}

func (s *Store) migrate(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			file_key TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			generation TEXT NOT NULL,
			chunk_index INT NOT NULL,
			text TEXT NOT NULL,
			page INT NOT NULL,
			section TEXT NOT NULL,
			content_type TEXT NOT NULL,
			related_image_ids JSONB NOT NULL DEFAULT '[]',
			metadata JSONB NOT NULL DEFAULT '{}',
			model_version TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(%d) NOT NULL
		)`, s.table, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_fingerprint_idx ON %s (fingerprint)`, s.table, s.table),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate pgvector table: %w", err)
		}
	}
	return nil
}

// Close 关闭连接池。
func (s *Store) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return wrap(err)
	}
	if err := s.insert(ctx, tx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrap(tx.Commit())
}

// Replace 在同一事务中删除旧记录并写入新记录，搜索侧不会观察到混合状态。
func (s *Store) Replace(ctx context.Context, filter model.Filter, records []model.VectorRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, wrap(err)
	}
	deleted, err := s.deleteWhere(ctx, tx, filter)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := s.insert(ctx, tx, records); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap(err)
	}
	return deleted, nil
}

func (s *Store) insert(ctx context.Context, ex execer, records []model.VectorRecord) error {
	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, fingerprint, file_key, file_name, generation, chunk_index, text, page, section,
			 content_type, related_image_ids, metadata, model_version, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint, file_key = EXCLUDED.file_key, file_name = EXCLUDED.file_name,
			generation = EXCLUDED.generation, chunk_index = EXCLUDED.chunk_index, text = EXCLUDED.text,
			page = EXCLUDED.page, section = EXCLUDED.section, content_type = EXCLUDED.content_type,
			related_image_ids = EXCLUDED.related_image_ids, metadata = EXCLUDED.metadata,
			model_version = EXCLUDED.model_version, created_at = EXCLUDED.created_at, embedding = EXCLUDED.embedding
	`, s.table)

	for _, r := range records {
		p := r.Payload
		related, err := json.Marshal(nonNil(p.RelatedImageIDs))
		if err != nil {
			return err
		}
		meta := p.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, q,
			r.ID, p.Fingerprint, p.FileKey, p.FileName, p.Generation, p.ChunkIndex, p.Text, p.Page, p.Section,
			p.ContentType, string(related), string(metaJSON), p.ModelVersion, p.CreatedAt, pgv.NewVector(r.Vector),
		); err != nil {
			return wrap(err)
		}
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// whereClause 把过滤条件翻译为 SQL，参数编号从 start 开始。
func whereClause(filter model.Filter, start int) (string, []any, error) {
	if len(filter) == 0 {
		return "TRUE", nil, nil
	}
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, f := range fields {
		col, ok := filterColumns[f]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", f)
		}
		parts = append(parts, fmt.Sprintf("%s = $%d", col, start+i))
		args = append(args, filter[f])
	}
	return strings.Join(parts, " AND "), args, nil
}

func (s *Store) deleteWhere(ctx context.Context, ex execer, filter model.Filter) (int, error) {
	where, args, err := whereClause(filter, 1)
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, where), args...)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter model.Filter) (int, error) {
	return s.deleteWhere(ctx, s.db, filter)
}

func (s *Store) Query(ctx context.Context, req vectorstore.QueryRequest) ([]model.ScoredRecord, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	where, args, err := whereClause(req.Filter, 3)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT id, fingerprint, file_key, file_name, generation, chunk_index, text, page, section,
		       content_type, related_image_ids, metadata, model_version, created_at,
		       1 - (embedding <=> $1) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, s.table, where)

	rows, err := s.db.QueryContext(ctx, q, append([]any{pgv.NewVector(req.Vector), limit}, args...)...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []model.ScoredRecord
	for rows.Next() {
		var (
			rec           model.ScoredRecord
			related, meta []byte
		)
		p := &rec.Payload
		if err := rows.Scan(&rec.ID, &p.Fingerprint, &p.FileKey, &p.FileName, &p.Generation, &p.ChunkIndex,
			&p.Text, &p.Page, &p.Section, &p.ContentType, &related, &meta, &p.ModelVersion, &p.CreatedAt,
			&rec.Score); err != nil {
			return nil, err
		}
		p.ChunkID = rec.ID
		_ = json.Unmarshal(related, &p.RelatedImageIDs)
		_ = json.Unmarshal(meta, &p.Metadata)
		out = append(out, rec)
	}
	return out, wrap(rows.Err())
}

func (s *Store) IDsByFilter(ctx context.Context, filter model.Filter) ([]string, error) {
	where, args, err := whereClause(filter, 1)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE %s ORDER BY chunk_index ASC`, s.table, where), args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, wrap(rows.Err())
}

// wrap 把连接类错误标记为瞬时错误，其余原样返回。
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) || vectorstore.IsTransient(err) {
		return vectorstore.Transient(err)
	}
	return err
}
