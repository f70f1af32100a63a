// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"pdf-vectorize-go/internal/model"
)

// maxErrorLen 是写入 last_error 列的错误信息长度上限。
const maxErrorLen = 1000

// DocumentRepository 定义了文件登记表的数据持久化操作。
// 登记表只用于展示上传和处理状态，不参与去重。
type DocumentRepository interface {
	Create(ctx context.Context, record *model.FileRecord) error
	FindByKey(ctx context.Context, key string) (*model.FileRecord, error)
	DeleteByKey(ctx context.Context, key string) error
	MarkProcessing(ctx context.Context, key, fileHash string) error
	MarkCompleted(ctx context.Context, key string, chunkCount int) error
	MarkFailed(ctx context.Context, key string, cause error) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, record *model.FileRecord) error {
	if record.Status == "" {
		record.Status = model.StatusUploaded
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByKey 根据文件键检索记录，不存在时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByKey(ctx context.Context, key string) (*model.FileRecord, error) {
	var record model.FileRecord
	if err := r.db.WithContext(ctx).Where("file_key = ?", key).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *documentRepository) DeleteByKey(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("file_key = ?", key).Delete(&model.FileRecord{}).Error
}

func (r *documentRepository) MarkProcessing(ctx context.Context, key, fileHash string) error {
	return r.update(ctx, key, map[string]interface{}{
		"status":     model.StatusProcessing,
		"file_hash":  fileHash,
		"last_error": "",
	})
}

func (r *documentRepository) MarkCompleted(ctx context.Context, key string, chunkCount int) error {
	return r.update(ctx, key, map[string]interface{}{
		"status":       model.StatusCompleted,
		"chunk_count":  chunkCount,
		"last_error":   "",
		"processed_at": time.Now(),
	})
}

func (r *documentRepository) MarkFailed(ctx context.Context, key string, cause error) error {
	return r.update(ctx, key, map[string]interface{}{
		"status":     model.StatusFailed,
		"last_error": errorText(cause),
	})
}

// update 按文件键更新；键不在登记表中（例如命令行直接处理的文件）时不做任何事。
func (r *documentRepository) update(ctx context.Context, key string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.FileRecord{}).Where("file_key = ?", key).Updates(fields).Error
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > maxErrorLen {
		s = s[:maxErrorLen]
	}
	return s
}

// memoryDocumentRepository 是进程内实现，未配置 MySQL 时使用。
type memoryDocumentRepository struct {
	mu      sync.RWMutex
	nextID  uint
	records map[string]*model.FileRecord
}

// NewMemoryDocumentRepository 创建一个进程内的 DocumentRepository。
func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{records: make(map[string]*model.FileRecord)}
}

func (r *memoryDocumentRepository) Create(_ context.Context, record *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now()
	record.ID = r.nextID
	record.CreatedAt, record.UpdatedAt = now, now
	if record.Status == "" {
		record.Status = model.StatusUploaded
	}
	cp := *record
	r.records[record.FileKey] = &cp
	return nil
}

func (r *memoryDocumentRepository) FindByKey(_ context.Context, key string) (*model.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryDocumentRepository) DeleteByKey(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

func (r *memoryDocumentRepository) MarkProcessing(_ context.Context, key, fileHash string) error {
	r.modify(key, func(rec *model.FileRecord) {
		rec.Status = model.StatusProcessing
		rec.FileHash = fileHash
		rec.LastError = ""
	})
	return nil
}

func (r *memoryDocumentRepository) MarkCompleted(_ context.Context, key string, chunkCount int) error {
	r.modify(key, func(rec *model.FileRecord) {
		now := time.Now()
		rec.Status = model.StatusCompleted
		rec.ChunkCount = chunkCount
		rec.LastError = ""
		rec.ProcessedAt = &now
	})
	return nil
}

func (r *memoryDocumentRepository) MarkFailed(_ context.Context, key string, cause error) error {
	r.modify(key, func(rec *model.FileRecord) {
		rec.Status = model.StatusFailed
		rec.LastError = errorText(cause)
	})
	return nil
}

func (r *memoryDocumentRepository) modify(key string, fn func(*model.FileRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		fn(rec)
		rec.UpdatedAt = time.Now()
	}
}
